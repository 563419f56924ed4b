package reconcile

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/directory"
)

// Logical slot names, matching the engine's resource addresses.
const (
	SlotApplication         = "azuread_application.vectorplane"
	SlotServicePrincipal    = "azuread_service_principal.vectorplane"
	SlotFederatedCredential = "azuread_application_federated_identity_credential.platform"

	// CredentialName is the natural key of the federated credential on the
	// application.
	CredentialName = "vectorplane-platform"
)

// Role is one of the fixed read-only grants, with the slot its assignment
// is bound under.
type Role struct {
	Name string
	Slot string
}

// Roles is the fixed read-only permission set, applied identically at the
// effective scope.
var Roles = []Role{
	{Name: "Reader", Slot: "azurerm_role_assignment.reader"},
	{Name: "Security Reader", Slot: "azurerm_role_assignment.security_reader"},
	{Name: "Monitoring Reader", Slot: "azurerm_role_assignment.monitoring_reader"},
}

// State is the slice of the declarative engine the reconciler mutates:
// reading current slot bindings and binding physical ids into slots.
type State interface {
	StateList() ([]string, error)
	Import(slot, physicalID string) error
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Resumed is true when state already had bindings and recovery was
	// skipped entirely.
	Resumed bool
	// Restored counts soft-deleted objects recovered from the directory.
	Restored int
	// Bound counts physical objects imported into state this pass.
	Bound int
	// Warnings counts lookup or import calls that failed outright, as
	// opposed to finding nothing.
	Warnings int
}

// Fresh reports whether this looks like a first-ever deployment: nothing
// was in state and nothing got bound. Operator messaging only; later stages
// behave identically.
func (r *Report) Fresh() bool {
	return !r.Resumed && r.Bound == 0
}

// Variable for mocking in tests
var sleep = time.Sleep

// Reconciler brings engine state in line with whatever a prior partial run
// left in the cloud before anything is created: restore soft-deleted
// identity objects, then import live orphans by natural key. Never creates
// anything itself.
type Reconciler struct {
	Dir   directory.Directory
	State State
	// PropagationDelay is the flat wait after a restore; restored objects
	// are not guaranteed to be immediately visible to subsequent reads.
	PropagationDelay time.Duration
}

// Reconcile runs the pass. Safe to re-run at any point: if any slot is
// already bound, recovery is skipped (the apply step knows how to update
// bound resources), and imports only ever bind what already exists.
func (r *Reconciler) Reconcile(cfg *config.OnboardingConfig, roleScope string) (*Report, error) {
	slots, err := r.State.StateList()
	if err != nil {
		return nil, fmt.Errorf("failed to inspect declarative state: %w", err)
	}

	report := &Report{}
	if len(slots) > 0 {
		log.Infof("🔁 Resuming: %d resource(s) already tracked, skipping recovery", len(slots))
		report.Resumed = true
		return report, nil
	}

	r.restoreDeleted(cfg.AppDisplayName, report)
	r.importExisting(cfg.AppDisplayName, roleScope, report)

	if report.Fresh() {
		log.Info("🆕 Fresh deployment: no existing resources found")
	} else {
		log.Infof("♻️  Recovered %d existing resource(s) into state", report.Bound)
	}
	return report, nil
}

// restoreDeleted recovers the application and its principal from the
// directory's soft-delete record set. Best-effort: a failure here still
// leaves the apply step free to create anew.
func (r *Reconciler) restoreDeleted(displayName string, report *Report) {
	deleted, err := r.Dir.FindDeletedApplication(displayName)
	if err != nil {
		log.Warnf("⚠️  Soft-delete lookup failed: %v", err)
		report.Warnings++
		return
	}
	if deleted == nil {
		return
	}

	log.Infof("🔄 Restoring soft-deleted application %q", displayName)
	if err := r.Dir.Restore(deleted.ObjectID); err != nil {
		log.Warnf("⚠️  Failed to restore application: %v", err)
		report.Warnings++
		return
	}
	report.Restored++

	// The principal is a separate deletable entity; restore it on its own.
	if deleted.AppID != "" {
		deletedSP, err := r.Dir.FindDeletedServicePrincipal(deleted.AppID)
		switch {
		case err != nil:
			log.Warnf("⚠️  Soft-deleted principal lookup failed: %v", err)
			report.Warnings++
		case deletedSP != nil:
			if err := r.Dir.Restore(deletedSP.ObjectID); err != nil {
				log.Warnf("⚠️  Failed to restore service principal: %v", err)
				report.Warnings++
			} else {
				report.Restored++
			}
		}
	}

	log.Infof("⏳ Waiting %s for directory propagation", r.PropagationDelay)
	sleep(r.PropagationDelay)
}

// importExisting binds live objects into state by natural key, in dependency
// order. Principal-dependent kinds are skipped when the principal is absent;
// they cannot be located without its identity.
func (r *Reconciler) importExisting(displayName, roleScope string, report *Report) {
	app, err := r.Dir.FindApplication(displayName)
	if err != nil {
		log.Warnf("⚠️  Application lookup failed: %v", err)
		report.Warnings++
		return
	}
	if app == nil {
		return
	}
	r.bind(SlotApplication, app.ObjectID, report)

	sp, err := r.Dir.FindServicePrincipal(app.AppID)
	if err != nil {
		log.Warnf("⚠️  Service principal lookup failed: %v", err)
		report.Warnings++
		return
	}
	if sp == nil {
		return
	}
	r.bind(SlotServicePrincipal, sp.ObjectID, report)

	cred, err := r.Dir.FindFederatedCredential(app.ObjectID, CredentialName)
	switch {
	case err != nil:
		log.Warnf("⚠️  Federated credential lookup failed: %v", err)
		report.Warnings++
	case cred != nil:
		physicalID := fmt.Sprintf("%s/federatedIdentityCredential/%s", app.ObjectID, cred.ID)
		r.bind(SlotFederatedCredential, physicalID, report)
	}

	for _, role := range Roles {
		ra, err := r.Dir.FindRoleAssignment(sp.ObjectID, role.Name, roleScope)
		switch {
		case err != nil:
			log.Warnf("⚠️  Role assignment lookup for %q failed: %v", role.Name, err)
			report.Warnings++
		case ra != nil:
			r.bind(role.Slot, ra.ID, report)
		}
	}
}

// bind imports one physical id under a logical slot. An import failure is a
// warning, not an abort; the apply step will surface anything unresolved.
func (r *Reconciler) bind(slot, physicalID string, report *Report) {
	log.Infof("📥 Importing %s", slot)
	if err := r.State.Import(slot, physicalID); err != nil {
		log.Warnf("⚠️  Import of %s failed: %v", slot, err)
		report.Warnings++
		return
	}
	report.Bound++
}
