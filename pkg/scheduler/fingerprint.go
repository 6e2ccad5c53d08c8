package scheduler

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// Fingerprint computes the signature spec.md's executor loop consults the
// action cache with: a hash over the task's script, mode, declared
// environment, and the digests recorded for its upstream tasks (the
// executor passes each upstream task's own signature). Any change to any of those inputs changes the signature, which
// is exactly the cache-invalidation behavior a rebuild needs.
func Fingerprint(spec TaskSpec, upstreamOutputs map[string]digest.Digest) digest.Digest {
	var b strings.Builder

	fmt.Fprintf(&b, "recipe=%s\ntask=%s\nmode=%d\nfakeroot=%t\nnetwork=%d\n",
		spec.RecipeName, spec.TaskName, spec.Mode, spec.Fakeroot, spec.Network)
	b.WriteString("script:\n")
	b.WriteString(spec.Script)
	b.WriteString("\n")

	b.WriteString("env:\n")
	for _, k := range sortedEnvKeys(spec.Env) {
		fmt.Fprintf(&b, "%s=%s\n", k, spec.Env[k])
	}

	b.WriteString("upstream:\n")
	upstreamKeys := make([]string, 0, len(upstreamOutputs))
	for k := range upstreamOutputs {
		upstreamKeys = append(upstreamKeys, k)
	}
	sortStrings(upstreamKeys)
	for _, k := range upstreamKeys {
		fmt.Fprintf(&b, "%s=%s\n", k, upstreamOutputs[k])
	}

	return digest.FromString(b.String())
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
