package directory

import (
	"encoding/json"
	"fmt"
	"os/exec"
)

// Application is a live identity application object.
type Application struct {
	ObjectID    string `json:"id"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

// ServicePrincipal is the application's directory principal.
type ServicePrincipal struct {
	ObjectID    string `json:"id"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

// FederatedCredential is a zero-secret trust statement on an application.
type FederatedCredential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleAssignment binds a principal to a role at a scope.
type RoleAssignment struct {
	ID        string `json:"id"`
	RoleName  string `json:"roleDefinitionName"`
	Scope     string `json:"scope"`
	Principal string `json:"principalId"`
}

// DeletedObject is a soft-deleted directory object still inside its
// retention window.
type DeletedObject struct {
	ObjectID    string `json:"id"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

// Directory is the identity/resource directory capability the reconciler
// needs. Every lookup returns nil when nothing matches; the soft-delete pair
// (FindDeleted*, Restore) isolates one provider's retention model from the
// reconciliation state machine.
type Directory interface {
	FindApplication(displayName string) (*Application, error)
	FindDeletedApplication(displayName string) (*DeletedObject, error)
	FindDeletedServicePrincipal(appID string) (*DeletedObject, error)
	Restore(objectID string) error
	FindServicePrincipal(appID string) (*ServicePrincipal, error)
	FindFederatedCredential(appObjectID, name string) (*FederatedCredential, error)
	FindRoleAssignment(principalObjectID, roleName, roleScope string) (*RoleAssignment, error)
}

// Variable for mocking in tests
var execCommand = exec.Command

const graphBase = "https://graph.microsoft.com/v1.0"

// AzDirectory implements Directory over the az CLI.
type AzDirectory struct {
	Binary string
}

func NewAzDirectory(binary string) *AzDirectory {
	if binary == "" {
		binary = "az"
	}
	return &AzDirectory{Binary: binary}
}

func (d *AzDirectory) run(args ...string) ([]byte, error) {
	out, err := execCommand(d.Binary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", d.Binary, args[0], err)
	}
	return out, nil
}

// FindApplication looks a live application up by exact display name.
func (d *AzDirectory) FindApplication(displayName string) (*Application, error) {
	out, err := d.run("ad", "app", "list", "--display-name", displayName, "--output", "json")
	if err != nil {
		return nil, err
	}
	var apps []Application
	if err := json.Unmarshal(out, &apps); err != nil {
		return nil, fmt.Errorf("failed to parse application list: %w", err)
	}
	for i := range apps {
		if apps[i].DisplayName == displayName {
			return &apps[i], nil
		}
	}
	return nil, nil
}

// FindDeletedApplication searches the soft-delete record set by exact
// display name.
func (d *AzDirectory) FindDeletedApplication(displayName string) (*DeletedObject, error) {
	url := fmt.Sprintf("%s/directory/deletedItems/microsoft.graph.application?$filter=displayName eq '%s'",
		graphBase, displayName)
	return d.findDeleted(url, func(o *DeletedObject) bool { return o.DisplayName == displayName })
}

// FindDeletedServicePrincipal searches soft-deleted principals by their
// application reference.
func (d *AzDirectory) FindDeletedServicePrincipal(appID string) (*DeletedObject, error) {
	url := fmt.Sprintf("%s/directory/deletedItems/microsoft.graph.servicePrincipal?$filter=appId eq '%s'",
		graphBase, appID)
	return d.findDeleted(url, func(o *DeletedObject) bool { return o.AppID == appID })
}

func (d *AzDirectory) findDeleted(url string, match func(*DeletedObject) bool) (*DeletedObject, error) {
	out, err := d.run("rest", "--method", "GET", "--url", url,
		"--headers", "ConsistencyLevel=eventual", "--output", "json")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Value []DeletedObject `json:"value"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse deleted items: %w", err)
	}
	for i := range resp.Value {
		if match(&resp.Value[i]) {
			return &resp.Value[i], nil
		}
	}
	return nil, nil
}

// Restore recovers one soft-deleted object. The application and its
// principal are separate deletable entities, so callers restore each.
func (d *AzDirectory) Restore(objectID string) error {
	url := fmt.Sprintf("%s/directory/deletedItems/%s/restore", graphBase, objectID)
	_, err := d.run("rest", "--method", "POST", "--url", url)
	return err
}

// FindServicePrincipal looks the principal up by its application reference.
func (d *AzDirectory) FindServicePrincipal(appID string) (*ServicePrincipal, error) {
	out, err := d.run("ad", "sp", "list",
		"--filter", fmt.Sprintf("appId eq '%s'", appID), "--output", "json")
	if err != nil {
		return nil, err
	}
	var sps []ServicePrincipal
	if err := json.Unmarshal(out, &sps); err != nil {
		return nil, fmt.Errorf("failed to parse service principal list: %w", err)
	}
	if len(sps) == 0 {
		return nil, nil
	}
	return &sps[0], nil
}

// FindFederatedCredential looks the named credential up on an application.
func (d *AzDirectory) FindFederatedCredential(appObjectID, name string) (*FederatedCredential, error) {
	out, err := d.run("ad", "app", "federated-credential", "list",
		"--id", appObjectID, "--output", "json")
	if err != nil {
		return nil, err
	}
	var creds []FederatedCredential
	if err := json.Unmarshal(out, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse federated credential list: %w", err)
	}
	for i := range creds {
		if creds[i].Name == name {
			return &creds[i], nil
		}
	}
	return nil, nil
}

// FindRoleAssignment looks one assignment up by assignee, role, and scope.
func (d *AzDirectory) FindRoleAssignment(principalObjectID, roleName, roleScope string) (*RoleAssignment, error) {
	out, err := d.run("role", "assignment", "list",
		"--assignee", principalObjectID,
		"--role", roleName,
		"--scope", roleScope,
		"--output", "json")
	if err != nil {
		return nil, err
	}
	var ras []RoleAssignment
	if err := json.Unmarshal(out, &ras); err != nil {
		return nil, fmt.Errorf("failed to parse role assignment list: %w", err)
	}
	if len(ras) == 0 {
		return nil, nil
	}
	return &ras[0], nil
}
