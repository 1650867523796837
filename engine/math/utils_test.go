package math

import "testing"

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 10) != 5 {
		t.Fail()
	}
	if Clamp(-1, 0, 10) != 0 {
		t.Fail()
	}
	if Clamp(11, 0, 10) != 10 {
		t.Fail()
	}
}

func TestAlignUp(t *testing.T) {
	if AlignUp(12, 3) != 12 {
		t.Fail()
	}
	if AlignUp(10, 3) != 12 {
		t.Fail()
	}
	if AlignUp(10, 1) != 10 {
		t.Fail()
	}
	if AlignUp(0, 64) != 0 {
		t.Fail()
	}
}
