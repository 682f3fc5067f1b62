package catalog

import (
	"errors"
	"testing"
)

func testAtoms() []PseudoAtom {
	return []PseudoAtom{
		{Name: "CH4_sp3", Mass: 16.04246},
		{Name: "O_co2", Mass: 15.9994, Charge: -0.35},
		{Name: "C_co2", Mass: 12.0, Charge: 0.70},
	}
}

func TestNewAndLookup(t *testing.T) {
	c, err := New(testAtoms())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}

	id, err := c.TypeOf("C_co2")
	if err != nil || id != 2 {
		t.Errorf("TypeOf(C_co2) = %d, %v; want 2", id, err)
	}
	if c.Charge(id) != 0.70 {
		t.Errorf("Charge = %v, want 0.70", c.Charge(id))
	}

	if _, err := c.TypeOf("Ar"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("TypeOf(Ar) error = %v, want ErrUnknownType", err)
	}
	if _, err := c.Atom(7); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Atom(7) error = %v, want ErrUnknownType", err)
	}

	m, err := c.MolecularMass([]int{1, 2, 1})
	if err != nil {
		t.Fatalf("MolecularMass failed: %v", err)
	}
	if want := 2*15.9994 + 12.0; m != want {
		t.Errorf("MolecularMass = %v, want %v", m, want)
	}
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name  string
		atoms []PseudoAtom
	}{
		{"empty name", []PseudoAtom{{Name: ""}}},
		{"duplicate", []PseudoAtom{{Name: "A"}, {Name: "A"}}},
		{"negative mass", []PseudoAtom{{Name: "A", Mass: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.atoms); err == nil {
				t.Error("expected error")
			}
		})
	}
}
