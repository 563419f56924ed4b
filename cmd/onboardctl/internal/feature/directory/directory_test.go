package directory

import (
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	case "ad":
		switch args[2] {
		case "app":
			if args[3] == "federated-credential" {
				fmt.Println(os.Getenv("MOCK_AZ_FC_LIST"))
				os.Exit(0)
			}
			fmt.Println(os.Getenv("MOCK_AZ_APP_LIST"))
			os.Exit(0)
		case "sp":
			fmt.Println(os.Getenv("MOCK_AZ_SP_LIST"))
			os.Exit(0)
		}
	case "role":
		fmt.Println(os.Getenv("MOCK_AZ_RA_LIST"))
		os.Exit(0)
	case "rest":
		// args: rest --method GET|POST --url <url> ...
		if args[3] == "POST" {
			if os.Getenv("MOCK_AZ_RESTORE_FAIL") == "1" {
				os.Exit(1)
			}
			os.Exit(0)
		}
		fmt.Println(os.Getenv("MOCK_AZ_DELETED_ITEMS"))
		os.Exit(0)
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

func withMockAz(t *testing.T) *AzDirectory {
	t.Helper()
	orig := execCommand
	execCommand = mockExecCommand
	t.Cleanup(func() { execCommand = orig })
	return NewAzDirectory("az")
}

func TestFindApplication(t *testing.T) {
	d := withMockAz(t)

	t.Run("exact display name match", func(t *testing.T) {
		// The CLI prefix-matches --display-name; only the exact name counts.
		t.Setenv("MOCK_AZ_APP_LIST", `[
			{"id":"obj-2","appId":"app-2","displayName":"VectorPlane Security (sub-123 ) old"},
			{"id":"obj-1","appId":"app-1","displayName":"VectorPlane Security (sub-123 )"}
		]`)

		app, err := d.FindApplication("VectorPlane Security (sub-123 )")
		require.NoError(t, err)
		require.NotNil(t, app)
		assert.Equal(t, "obj-1", app.ObjectID)
		assert.Equal(t, "app-1", app.AppID)
	})

	t.Run("no match", func(t *testing.T) {
		t.Setenv("MOCK_AZ_APP_LIST", `[]`)
		app, err := d.FindApplication("VectorPlane Security (sub-123 )")
		require.NoError(t, err)
		assert.Nil(t, app)
	})
}

func TestFindServicePrincipal(t *testing.T) {
	d := withMockAz(t)

	t.Setenv("MOCK_AZ_SP_LIST", `[{"id":"sp-obj-1","appId":"app-1","displayName":"VectorPlane Security (sub-123 )"}]`)
	sp, err := d.FindServicePrincipal("app-1")
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, "sp-obj-1", sp.ObjectID)

	t.Setenv("MOCK_AZ_SP_LIST", `[]`)
	sp, err = d.FindServicePrincipal("app-1")
	require.NoError(t, err)
	assert.Nil(t, sp)
}

func TestFindFederatedCredential(t *testing.T) {
	d := withMockAz(t)

	t.Setenv("MOCK_AZ_FC_LIST", `[
		{"id":"fc-1","name":"other-trust"},
		{"id":"fc-2","name":"vectorplane-platform"}
	]`)
	cred, err := d.FindFederatedCredential("obj-1", "vectorplane-platform")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "fc-2", cred.ID)

	cred, err = d.FindFederatedCredential("obj-1", "missing")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFindRoleAssignment(t *testing.T) {
	d := withMockAz(t)

	t.Setenv("MOCK_AZ_RA_LIST", `[{"id":"/subscriptions/sub-123/providers/Microsoft.Authorization/roleAssignments/ra-1","roleDefinitionName":"Reader","scope":"/subscriptions/sub-123","principalId":"sp-obj-1"}]`)
	ra, err := d.FindRoleAssignment("sp-obj-1", "Reader", "/subscriptions/sub-123")
	require.NoError(t, err)
	require.NotNil(t, ra)
	assert.Contains(t, ra.ID, "roleAssignments/ra-1")

	t.Setenv("MOCK_AZ_RA_LIST", `[]`)
	ra, err = d.FindRoleAssignment("sp-obj-1", "Reader", "/subscriptions/sub-123")
	require.NoError(t, err)
	assert.Nil(t, ra)
}

func TestFindDeletedApplication(t *testing.T) {
	d := withMockAz(t)

	t.Setenv("MOCK_AZ_DELETED_ITEMS", `{"value":[{"id":"del-1","appId":"app-1","displayName":"VectorPlane Security (sub-123 )"}]}`)
	deleted, err := d.FindDeletedApplication("VectorPlane Security (sub-123 )")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "del-1", deleted.ObjectID)
	assert.Equal(t, "app-1", deleted.AppID)

	t.Setenv("MOCK_AZ_DELETED_ITEMS", `{"value":[]}`)
	deleted, err = d.FindDeletedApplication("VectorPlane Security (sub-123 )")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestRestore(t *testing.T) {
	d := withMockAz(t)

	assert.NoError(t, d.Restore("del-1"))

	t.Setenv("MOCK_AZ_RESTORE_FAIL", "1")
	assert.Error(t, d.Restore("del-1"))
}
