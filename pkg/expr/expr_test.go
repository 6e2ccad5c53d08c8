package expr

import "testing"

func TestConditionalEmbeddedExpressionScenario(t *testing.T) {
	src := `${@contains('DISTRO_FEATURES','systemd','libsystemd','',ctx)}`

	withSystemd := MapContext{"DISTRO_FEATURES": "systemd pam"}
	ir := Compile(src)
	res, err := Evaluate(ir, withSystemd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "libsystemd" {
		t.Fatalf("expected %q, got %q", "libsystemd", res.Value)
	}

	withoutSystemd := MapContext{"DISTRO_FEATURES": "pam"}
	ir2 := Compile(src)
	res2, err := Evaluate(ir2, withoutSystemd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res2.Value != "" {
		t.Fatalf("expected empty string, got %q", res2.Value)
	}
}

func TestStaticAndHybridAgreeOnLowComplexity(t *testing.T) {
	ir := Compile(`'hello'`)
	if ir.Complexity > 3 {
		t.Fatalf("expected low complexity literal, got %d", ir.Complexity)
	}
	staticRes, err := Evaluate(ir, MapContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staticRes.Strategy != StrategyStatic {
		t.Fatalf("expected static strategy for score %d", ir.Complexity)
	}
	if staticRes.Value != "hello" {
		t.Fatalf("expected %q, got %q", "hello", staticRes.Value)
	}
}

func TestVercmpMissingComponentsTreatedAsZero(t *testing.T) {
	ir := Compile(`vercmp('1.2', '1.2.0')`)
	res, err := Evaluate(ir, MapContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "0" {
		t.Fatalf("expected equal versions, got %q", res.Value)
	}
}

func TestVercmpOrdering(t *testing.T) {
	ir := Compile(`vercmp('1.10', '1.9')`)
	res, _ := Evaluate(ir, MapContext{}, nil)
	if res.Value != "1" {
		t.Fatalf("expected 1.10 > 1.9, got %q", res.Value)
	}
}

func TestWhichFindsComponentBySuffix(t *testing.T) {
	ir := Compile(`which('PATH', 'mytool')`)
	res, _ := Evaluate(ir, MapContext{"PATH": "/usr/bin:/opt/bin"}, nil)
	if res.Value != "" {
		t.Fatalf("expected no exact/suffix match, got %q", res.Value)
	}

	ir2 := Compile(`which('PATH', 'mytool')`)
	res2, _ := Evaluate(ir2, MapContext{"PATH": "/usr/bin:/opt/mytool"}, nil)
	if res2.Value != "mytool" {
		t.Fatalf("expected %q, got %q", "mytool", res2.Value)
	}
}

func TestFallbackUnevaluatedWithoutCollaborator(t *testing.T) {
	ir := Compile(`some_opaque_python_thing(d)`)
	if len(ir.Ops) != 1 || ir.Ops[0].Kind != OpOpaqueFallback {
		t.Fatalf("expected an unrecognized snippet to compile to a single opaque op, got %+v", ir.Ops)
	}
	res, err := Evaluate(ir, MapContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Unevaluated {
		t.Fatalf("expected unevaluated result when no fallback collaborator configured")
	}
}

func TestReadVariableConcatenation(t *testing.T) {
	ctx := MapContext{"PN": "zlib"}
	ir := Compile(`'lib' + d.getVar('PN')`)
	res, err := Evaluate(ir, ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "libzlib" {
		t.Fatalf("expected %q, got %q", "libzlib", res.Value)
	}
}

func TestAnyAllDistroFeatures(t *testing.T) {
	ctx := MapContext{"DISTRO_FEATURES": "systemd pam wayland"}

	anyIR := Compile(`any_distro_features('systemd', 'x11')`)
	anyRes, _ := Evaluate(anyIR, ctx, nil)
	if anyRes.Value != "1" {
		t.Fatalf("expected any_distro_features to be true")
	}

	allIR := Compile(`all_distro_features('systemd', 'x11')`)
	allRes, _ := Evaluate(allIR, ctx, nil)
	if allRes.Value != "" {
		t.Fatalf("expected all_distro_features to be false")
	}
}

func TestStringMethodUpperLowerOnVariableRead(t *testing.T) {
	ctx := MapContext{"PN": "zlib"}

	upperIR := Compile(`${@d.getVar('PN').upper()}`)
	upperRes, err := Evaluate(upperIR, ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upperRes.Value != "ZLIB" {
		t.Fatalf("expected %q, got %q", "ZLIB", upperRes.Value)
	}

	lowerIR := Compile(`${@d.getVar('PN').upper().lower()}`)
	lowerRes, err := Evaluate(lowerIR, ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lowerRes.Value != "zlib" {
		t.Fatalf("expected %q, got %q", "zlib", lowerRes.Value)
	}
}

func TestStringMethodStripAndStartsEndsWith(t *testing.T) {
	ctx := MapContext{"PV": "  1.3  "}

	stripRes, err := Evaluate(Compile(`${@d.getVar('PV').strip()}`), ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stripRes.Value != "1.3" {
		t.Fatalf("expected %q, got %q", "1.3", stripRes.Value)
	}

	startsRes, err := Evaluate(Compile(`${@'libzlib1'.starts_with('lib')}`), ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if startsRes.Value != "1" {
		t.Fatalf("expected starts_with to report true, got %q", startsRes.Value)
	}

	endsRes, err := Evaluate(Compile(`${@'libzlib1'.ends_with('.so')}`), ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endsRes.Value != "" {
		t.Fatalf("expected ends_with to report false, got %q", endsRes.Value)
	}
}

func TestStringMethodReplaceFindSplitJoin(t *testing.T) {
	replaceRes, _ := Evaluate(Compile(`${@'a-b-c'.replace('-', '_')}`), MapContext{}, nil)
	if replaceRes.Value != "a_b_c" {
		t.Fatalf("expected %q, got %q", "a_b_c", replaceRes.Value)
	}

	findRes, _ := Evaluate(Compile(`${@'a-b-c'.find('b')}`), MapContext{}, nil)
	if findRes.Value != "2" {
		t.Fatalf("expected %q, got %q", "2", findRes.Value)
	}

	splitRes, _ := Evaluate(Compile(`${@'a   b  c'.split()}`), MapContext{}, nil)
	if splitRes.Value != "a b c" {
		t.Fatalf("expected %q, got %q", "a b c", splitRes.Value)
	}

	joinRes, _ := Evaluate(Compile(`${@'-'.join('a b c')}`), MapContext{}, nil)
	if joinRes.Value != "a-b-c" {
		t.Fatalf("expected %q, got %q", "a-b-c", joinRes.Value)
	}
}

func TestGeneralTernaryOnVariableMembership(t *testing.T) {
	withSystemd := MapContext{"DISTRO_FEATURES": "systemd pam"}
	src := `${@'libsystemd' if d.getVar('DISTRO_FEATURES') contains 'systemd' else ''}`

	res, err := Evaluate(Compile(src), withSystemd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "libsystemd" {
		t.Fatalf("expected %q, got %q", "libsystemd", res.Value)
	}

	without := MapContext{"DISTRO_FEATURES": "pam"}
	res2, err := Evaluate(Compile(src), without, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res2.Value != "" {
		t.Fatalf("expected empty string, got %q", res2.Value)
	}
}

func TestLogicalAndOrNot(t *testing.T) {
	andRes, _ := Evaluate(Compile(`${@'yes' if 'a' == 'a' and 'b' == 'b' else 'no'}`), MapContext{}, nil)
	if andRes.Value != "yes" {
		t.Fatalf("expected %q, got %q", "yes", andRes.Value)
	}

	orRes, _ := Evaluate(Compile(`${@'yes' if 'a' == 'x' or 'b' == 'b' else 'no'}`), MapContext{}, nil)
	if orRes.Value != "yes" {
		t.Fatalf("expected %q, got %q", "yes", orRes.Value)
	}

	notRes, _ := Evaluate(Compile(`${@'yes' if not 'a' == 'b' else 'no'}`), MapContext{}, nil)
	if notRes.Value != "yes" {
		t.Fatalf("expected %q, got %q", "yes", notRes.Value)
	}
}

func TestGeneralCompareOperators(t *testing.T) {
	eqRes, _ := Evaluate(Compile(`${@'10' == '10'}`), MapContext{}, nil)
	if eqRes.Value != "1" {
		t.Fatalf("expected equal strings to compare true, got %q", eqRes.Value)
	}

	gtRes, _ := Evaluate(Compile(`${@'big' if '10' > '9' else 'small'}`), MapContext{}, nil)
	if gtRes.Value != "big" {
		t.Fatalf("expected numeric comparison to treat %q as greater than %q, got %q", "10", "9", gtRes.Value)
	}

	inRes, _ := Evaluate(Compile(`${@'systemd' in d.getVar('DISTRO_FEATURES')}`), MapContext{"DISTRO_FEATURES": "systemd pam"}, nil)
	if inRes.Value != "1" {
		t.Fatalf("expected membership check to succeed, got %q", inRes.Value)
	}
}

func TestListLiteralJoinsElements(t *testing.T) {
	res, err := Evaluate(Compile(`${@['a', 'b', 'c']}`), MapContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "a b c" {
		t.Fatalf("expected %q, got %q", "a b c", res.Value)
	}
}
