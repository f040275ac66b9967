package version

import "testing"

func TestVersion(t *testing.T) {
	if Version[:4] != Maj+"."+Min+"." {
		t.Fatalf("version %s does not start with %s.%s.", Version, Maj, Min)
	}
}
