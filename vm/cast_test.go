package vm

import (
	"errors"
	"math"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCanCastTo(t *testing.T) {
	animal := NewClass("Animal", nil)
	dog := NewClass("Dog", animal)
	pet := NewInterface("Pet")
	named := NewInterface("Named")
	pet.Extends = []*Interface{named}
	dog.Interfaces = []*Interface{pet}

	tests := []struct {
		name     string
		src, dst Type
		want     bool
	}{
		{"char to int", Char, Int, true},
		{"int to float", Int, Float, true},
		{"char to float", Char, Float, true},
		{"float to int", Float, Int, false},
		{"int to boolean", Int, Boolean, false},
		{"boolean to int", Boolean, Int, false},
		{"subclass to base", dog, animal, true},
		{"base to subclass", animal, dog, false},
		{"class to Object", dog, ObjectClass, true},
		{"class to interface", dog, pet, true},
		{"class to extended interface", dog, named, true},
		{"base to interface of subclass", animal, pet, false},
		{"interface to Object", pet, ObjectClass, true},
		{"null to class", NullType, dog, true},
		{"null to String", NullType, String, true},
		{"null to int", NullType, Int, false},
		{"String to Object", String, ObjectClass, true},
		{"int to String", Int, String, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanCastTo(tt.src, tt.dst); got != tt.want {
				t.Errorf("CanCastTo(%s, %s) = %v, want %v", tt.src.Name(), tt.dst.Name(), got, tt.want)
			}
		})
	}
}

func TestCanCastToTypeVariable(t *testing.T) {
	comparable := NewInterface("Comparable")
	tv := NewTypeVariable("T")
	item := NewClass("Item", nil)

	if !CanCastTo(item, tv) {
		t.Error("any class should satisfy an Object bound")
	}
	tv.Narrow(comparable)
	if CanCastTo(item, tv) {
		t.Error("Item does not implement the narrowed bound")
	}
	item.Interfaces = []*Interface{comparable}
	if !CanCastTo(item, tv) {
		t.Error("Item implements the narrowed bound")
	}
}

func TestCastTo(t *testing.T) {
	tests := []struct {
		name   string
		v      Value
		target Type
		want   Value
	}{
		{"int to float", IntValue(3), Float, FloatValue(3)},
		{"float to int truncates", FloatValue(3.9), Int, IntValue(3)},
		{"char to int", CharValue('A'), Int, IntValue(65)},
		{"int to char", IntValue(97), Char, CharValue('a')},
		{"int to String", IntValue(42), String, StringValue("42")},
		{"boolean to String", BoolValue(true), String, StringValue("true")},
		{"null to String", Null, String, Null},
		{"NaN to int", FloatValue(math.NaN()), Int, IntValue(0)},
		{"+Inf to int saturates", FloatValue(math.Inf(1)), Int, IntValue(math.MaxInt64)},
		{"-Inf to int saturates", FloatValue(math.Inf(-1)), Int, IntValue(math.MinInt64)},
		{"huge float to int saturates", FloatValue(1e300), Int, IntValue(math.MaxInt64)},
		{"negative float truncates toward zero", FloatValue(-2.7), Int, IntValue(-2)},
		{"NaN to char", FloatValue(math.NaN()), Char, CharValue(0)},
		{"negative to char", FloatValue(-5), Char, CharValue(0)},
		{"huge to char", FloatValue(1e20), Char, CharValue(unicode.MaxRune)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CastTo(tt.v, tt.target)
			if err != nil {
				t.Fatalf("CastTo() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CastTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCastToInvalid(t *testing.T) {
	_, err := CastTo(BoolValue(true), Int)
	var castErr *InvalidCastError
	if !errors.As(err, &castErr) {
		t.Fatalf("CastTo(true, int) error = %v, want *InvalidCastError", err)
	}
	if castErr.From != Boolean || castErr.To != Int {
		t.Errorf("error = %+v", castErr)
	}

	animal := NewClass("Animal", nil)
	dog := NewClass("Dog", animal)
	h := NewHeap()
	a, _ := h.Instantiate(animal)
	if _, err := CastTo(a, dog); err == nil {
		t.Error("downcast of an Animal to Dog should fail")
	}
	d, _ := h.Instantiate(dog)
	if got, err := CastTo(d, animal); err != nil || got != d {
		t.Errorf("CastTo(dog, Animal) = %v, %v; want identity", got, err)
	}
}

func TestCanExplicitCast(t *testing.T) {
	animal := NewClass("Animal", nil)
	dog := NewClass("Dog", animal)
	if !CanExplicitCast(Float, Int) {
		t.Error("float to int is a legal manual cast")
	}
	if !CanExplicitCast(animal, dog) {
		t.Error("downcast is a legal manual cast")
	}
	if CanExplicitCast(Boolean, Int) {
		t.Error("boolean to int is never legal")
	}
	if !CanExplicitCast(dog, String) {
		t.Error("anything casts to String")
	}
}

func genValue() *rapid.Generator[Value] {
	return rapid.OneOf(
		rapid.Map(rapid.Int64(), IntValue),
		rapid.Map(rapid.Float64(), FloatValue),
		rapid.Map(rapid.Bool(), BoolValue),
		rapid.Map(rapid.Rune(), CharValue),
		rapid.Map(rapid.String(), StringValue),
		rapid.Just(Null),
	)
}

func TestCastToOwnTypeIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := genValue().Draw(t, "value")
		got, err := CastTo(v, TypeOf(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestCanCastToIsReflexiveAndTransitive(t *testing.T) {
	animal := NewClass("Animal", nil)
	dog := NewClass("Dog", animal)
	puppy := NewClass("Puppy", dog)
	pet := NewInterface("Pet")
	dog.Interfaces = []*Interface{pet}
	universe := []Type{Char, Int, Float, Boolean, String, NullType, ObjectClass, animal, dog, puppy, pet}

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SampledFrom(universe).Draw(t, "a")
		b := rapid.SampledFrom(universe).Draw(t, "b")
		c := rapid.SampledFrom(universe).Draw(t, "c")
		require.True(t, CanCastTo(a, a))
		if CanCastTo(a, b) && CanCastTo(b, c) {
			require.True(t, CanCastTo(a, c), "%s -> %s -> %s", a.Name(), b.Name(), c.Name())
		}
	})
}
