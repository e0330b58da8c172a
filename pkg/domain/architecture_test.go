package domain_test

import (
	"testing"

	"workspacemodel/testutil"
)

func TestDomainStaysFreeOfInternalPackages(t *testing.T) {
	internal := testutil.ModuleInternalForbidden("workspacemodel")
	testutil.AssertNoDirectImports(t, ".", internal, "domain types are the public contract")
	testutil.AssertNoTransitiveDependency(t, "workspacemodel/pkg/...", internal, "pkg must not reach into internal")
}
