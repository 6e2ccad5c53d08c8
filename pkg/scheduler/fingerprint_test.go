package scheduler

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
)

func baseSpec() TaskSpec {
	return TaskSpec{
		RecipeName: "zlib",
		TaskName:   "do_compile",
		Mode:       ModeShell,
		Script:     "make",
		Env:        map[string]string{"PV": "1.3"},
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	spec := baseSpec()
	upstream := map[string]digest.Digest{"zlib:do_configure": digest.FromString("a")}

	a := Fingerprint(spec, upstream)
	b := Fingerprint(spec, upstream)
	if a != b {
		t.Fatalf("expected identical fingerprints, got %s vs %s", a, b)
	}
}

func TestFingerprintChangesWithScript(t *testing.T) {
	spec := baseSpec()
	base := Fingerprint(spec, nil)

	spec.Script = "make all"
	changed := Fingerprint(spec, nil)
	if base == changed {
		t.Fatalf("expected fingerprint to change when script changes")
	}
}

func TestFingerprintChangesWithEnv(t *testing.T) {
	spec := baseSpec()
	base := Fingerprint(spec, nil)

	spec.Env = map[string]string{"PV": "1.4"}
	changed := Fingerprint(spec, nil)
	if base == changed {
		t.Fatalf("expected fingerprint to change when env changes")
	}
}

func TestFingerprintChangesWithUpstreamOutputs(t *testing.T) {
	spec := baseSpec()
	base := Fingerprint(spec, map[string]digest.Digest{"zlib:do_configure": digest.FromString("a")})
	changed := Fingerprint(spec, map[string]digest.Digest{"zlib:do_configure": digest.FromString("b")})
	if base == changed {
		t.Fatalf("expected fingerprint to change when an upstream output digest changes")
	}
}

func TestFingerprintIsOrderIndependentForEnvAndUpstream(t *testing.T) {
	spec := baseSpec()
	spec.Env = map[string]string{"A": "1", "B": "2", "C": "3"}
	upstream := map[string]digest.Digest{
		"a:do_x": digest.FromString("1"),
		"b:do_y": digest.FromString("2"),
	}

	first := Fingerprint(spec, upstream)

	spec2 := spec
	spec2.Env = map[string]string{"C": "3", "A": "1", "B": "2"}
	second := Fingerprint(spec2, upstream)

	if first != second {
		t.Fatalf("expected map iteration order not to affect the fingerprint")
	}
}
