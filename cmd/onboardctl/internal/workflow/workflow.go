package workflow

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/client"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/directory"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/engine"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/exchange"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/notify"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/reconcile"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/scope"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/secret"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/telemetry"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/settings"
)

var (
	// ErrEngineInitFailed marks a declarative engine that never became
	// usable. Fatal, reported.
	ErrEngineInitFailed = errors.New("engine initialization failed")

	// ErrApplyFailed marks a failed create/update step. Fatal, reported;
	// the recovery path is re-running the workflow, which re-enters
	// reconciliation.
	ErrApplyFailed = errors.New("apply failed")
)

// Run holds everything one onboarding pass needs, threaded by reference
// through the five stages.
type Run struct {
	Settings  *settings.Settings
	Client    *client.Client
	Reporter  *telemetry.Reporter
	Verifier  *scope.Verifier
	Directory directory.Directory
	Engine    *engine.Engine
	Prompt    exchange.PromptFunc
}

// New wires a run from settings.
func New(s *settings.Settings, prompt exchange.PromptFunc) *Run {
	c := client.NewClient(s.BackendURL)
	return &Run{
		Settings:  s,
		Client:    c,
		Reporter:  telemetry.New(c),
		Verifier:  scope.NewVerifier(s.DirectoryBinary),
		Directory: directory.NewAzDirectory(s.DirectoryBinary),
		Engine:    engine.New(s.EngineBinary, s.EngineDir, settings.DefaultVarFileName),
		Prompt:    prompt,
	}
}

// Execute drives exchange → verify → reconcile → apply → notify. Every
// error from verification onward is surfaced and reported; a callback
// failure alone does not fail the run.
func (r *Run) Execute() (err error) {
	cfg, err := exchange.Exchange(r.Client, r.Prompt)
	if err != nil {
		return err
	}
	r.Reporter.SetSession(cfg.ExternalID)

	// Anything not reported at its failure site still reaches the backend.
	defer func() {
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, scope.ErrNotAuthenticated),
			errors.Is(err, scope.ErrInsufficientPermissions),
			errors.Is(err, ErrEngineInitFailed),
			errors.Is(err, ErrApplyFailed):
		default:
			r.Reporter.Report(telemetry.KindAbnormal, err.Error())
		}
	}()

	varFile := r.Settings.VarFilePath()

	eff, err := scope.Verify(r.Verifier, cfg, func() error {
		return cfg.Save(varFile)
	})
	if err != nil {
		r.Reporter.Report(telemetry.KindAuthFailure, err.Error())
		return err
	}

	cfg.DeriveDisplayName()
	if err = cfg.Save(varFile); err != nil {
		return err
	}
	log.Infof("💾 Onboarding configuration persisted to %s", varFile)

	if initErr := r.Engine.Init(); initErr != nil {
		r.Reporter.Report(telemetry.KindEngineInitFailed, initErr.Error())
		return fmt.Errorf("%w: %v", ErrEngineInitFailed, initErr)
	}

	rec := &reconcile.Reconciler{
		Dir:              r.Directory,
		State:            r.Engine,
		PropagationDelay: time.Duration(r.Settings.PropagationDelaySeconds) * time.Second,
	}
	if _, recErr := rec.Reconcile(cfg, eff.RoleScope); recErr != nil {
		r.Reporter.Report(telemetry.KindEngineInitFailed, recErr.Error())
		return fmt.Errorf("%w: %v", ErrEngineInitFailed, recErr)
	}

	result, applyErr := r.Engine.Apply()
	if applyErr != nil {
		r.Reporter.Report(telemetry.KindApplyFailed, result.ErrorDetail)
		log.Error("❌ Apply failed. Re-running `onboardctl onboard` is safe: recovery resumes where it left off.")
		return fmt.Errorf("%w: %s", ErrApplyFailed, result.ErrorDetail)
	}
	if result.Summary != "" {
		log.Info(result.Summary)
	}

	r.notifyCompletion(cfg, eff)
	log.Info("🎉 Onboarding complete")
	return nil
}

// notifyCompletion builds the identity facts and sends the signed callback.
// Never fatal: the cloud resources are already correctly provisioned.
func (r *Run) notifyCompletion(cfg *config.OnboardingConfig, eff *scope.EffectiveScope) {
	facts := &notify.Facts{
		TenantID:          eff.TenantID,
		SubscriptionID:    cfg.SubscriptionID,
		ManagementGroupID: cfg.ManagementGroupID,
		OnboardingScope:   cfg.OnboardingScope,
	}

	outputs, err := r.Engine.Outputs()
	if err != nil {
		log.Warnf("⚠️  Could not read engine outputs: %v", err)
	} else {
		facts.ApplicationID = outputs["application_client_id"]
		facts.PrincipalID = outputs["service_principal_object_id"]
		if tenant := outputs["tenant_id"]; tenant != "" {
			facts.TenantID = tenant
		}
	}

	signingSecret, err := secret.Resolve(r.Settings.VaultSecretPath)
	if err != nil {
		log.Warnf("⚠️  %v", err)
		notify.ManualRecovery(cfg.ExternalID, facts)
		return
	}

	// Errors here already degrade to the manual recovery block.
	_ = notify.Notify(r.Client, cfg, facts, signingSecret)
}
