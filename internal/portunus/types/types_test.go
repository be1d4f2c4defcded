package types_test

import (
	"testing"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

func TestTagIDFromUID(t *testing.T) {
	cases := []struct {
		uid  []byte
		want types.TagID
		ok   bool
	}{
		{[]byte{0x12, 0x34, 0x56, 0x78}, 305419896, true},
		{[]byte{0x12, 0x34, 0x56, 0x78, 0x00}, 305419896, true},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF}, 4294967295, true},
		{[]byte{0x00, 0x00, 0x00, 0x01}, 1, true},
		{[]byte{0x12, 0x34, 0x56}, 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := types.TagIDFromUID(c.uid)
		if got != c.want || ok != c.ok {
			t.Errorf("TagIDFromUID(% x) = (%d, %v), want (%d, %v)", c.uid, got, ok, c.want, c.ok)
		}
	}
}

func TestTagIDString(t *testing.T) {
	if s := types.TagID(305419896).String(); s != "305419896" {
		t.Errorf("expected decimal form, got %q", s)
	}
}

func TestActionValid(t *testing.T) {
	for _, a := range []types.Action{types.ActionGranted, types.ActionUnknown, types.ActionRead, types.ActionUpdate, types.ActionDelete} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if types.Action("denied").Valid() {
		t.Error("unexpected action accepted")
	}
}

func TestDoorConfigAngles(t *testing.T) {
	c := types.DoorConfig{MinAngle: -30, MaxAngle: 60}
	if c.OpenAngle() != -30 || c.CloseAngle() != 60 {
		t.Errorf("expected open=min and close=max, got %v/%v", c.OpenAngle(), c.CloseAngle())
	}
}
