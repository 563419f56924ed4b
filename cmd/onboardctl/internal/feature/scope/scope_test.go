package scope

import (
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
)

// Mock helper process for exec.Command
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}

	if len(args) < 2 || args[0] != "az" {
		fmt.Fprintln(os.Stderr, "unexpected command")
		os.Exit(2)
	}

	switch args[1] {
	case "account":
		switch args[2] {
		case "show":
			if os.Getenv("MOCK_AZ_NO_SESSION") == "1" {
				fmt.Fprintln(os.Stderr, "Please run 'az login' to setup account.")
				os.Exit(1)
			}
			fmt.Println(os.Getenv("MOCK_AZ_ACCOUNT"))
			os.Exit(0)
		case "set":
			if os.Getenv("MOCK_AZ_SET_FAIL") == "1" {
				os.Exit(1)
			}
			os.Exit(0)
		case "management-group":
			if os.Getenv("MOCK_AZ_MG_FAIL") == "1" {
				fmt.Fprintln(os.Stderr, "AuthorizationFailed")
				os.Exit(1)
			}
			fmt.Println(`{"name":"mg-root"}`)
			os.Exit(0)
		}
	}
	os.Exit(0)
}

func mockExecCommand(command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	cmd.Env = append(cmd.Env, os.Environ()...)
	return cmd
}

func withMockAz(t *testing.T) {
	t.Helper()
	orig := execCommand
	execCommand = mockExecCommand
	t.Cleanup(func() { execCommand = orig })
}

func TestVerify_NotAuthenticated(t *testing.T) {
	withMockAz(t)
	t.Setenv("MOCK_AZ_NO_SESSION", "1")

	cfg := &config.OnboardingConfig{
		ExternalID:      "sess-1",
		SubscriptionID:  "sub-123",
		OnboardingScope: config.ScopeSubscription,
	}
	_, err := Verify(NewVerifier("az"), cfg, nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestVerify_SubscriptionMatchesCurrent(t *testing.T) {
	withMockAz(t)
	t.Setenv("MOCK_AZ_ACCOUNT", `{"id":"sub-123","tenantId":"t-1","name":"prod"}`)

	cfg := &config.OnboardingConfig{
		ExternalID:      "sess-1",
		SubscriptionID:  "sub-123",
		OnboardingScope: config.ScopeSubscription,
	}
	eff, err := Verify(NewVerifier("az"), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "t-1", eff.TenantID)
	assert.Equal(t, "/subscriptions/sub-123", eff.RoleScope)
}

func TestVerify_SubscriptionSwitchFails(t *testing.T) {
	withMockAz(t)
	t.Setenv("MOCK_AZ_ACCOUNT", `{"id":"sub-other","tenantId":"t-1","name":"dev"}`)
	t.Setenv("MOCK_AZ_SET_FAIL", "1")

	cfg := &config.OnboardingConfig{
		ExternalID:      "sess-1",
		SubscriptionID:  "sub-123",
		OnboardingScope: config.ScopeSubscription,
	}
	_, err := Verify(NewVerifier("az"), cfg, nil)
	assert.ErrorIs(t, err, ErrInsufficientPermissions)
}

func TestVerify_ManagementGroupFillsSubscription(t *testing.T) {
	withMockAz(t)
	t.Setenv("MOCK_AZ_ACCOUNT", `{"id":"sub-999","tenantId":"t-1","name":"prod"}`)

	cfg := &config.OnboardingConfig{
		ExternalID:        "sess-1",
		OnboardingScope:   config.ScopeManagementGroup,
		ManagementGroupID: "mg-root",
	}

	persisted := false
	eff, err := Verify(NewVerifier("az"), cfg, func() error {
		persisted = true
		// The late-bound field is filled before persisting.
		assert.Equal(t, "sub-999", cfg.SubscriptionID)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, persisted, "filled subscription id must be persisted before reconciliation")
	assert.Equal(t, "sub-999", cfg.SubscriptionID)
	assert.Equal(t, "/providers/Microsoft.Management/managementGroups/mg-root", eff.RoleScope)
}

func TestVerify_ManagementGroupNoReadAccess(t *testing.T) {
	withMockAz(t)
	t.Setenv("MOCK_AZ_ACCOUNT", `{"id":"sub-999","tenantId":"t-1","name":"prod"}`)
	t.Setenv("MOCK_AZ_MG_FAIL", "1")

	cfg := &config.OnboardingConfig{
		ExternalID:        "sess-1",
		SubscriptionID:    "sub-999",
		OnboardingScope:   config.ScopeManagementGroup,
		ManagementGroupID: "mg-root",
	}
	_, err := Verify(NewVerifier("az"), cfg, nil)
	assert.ErrorIs(t, err, ErrInsufficientPermissions)
}
