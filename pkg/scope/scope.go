// Package scope checks that a file's record belongs to the application that
// is currently selected on the instance. The instance only enforces this in
// its own editor, so uploads have to check it client-side.
package scope

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/remote"
)

const (
	// GlobalScope is the ID of the global application. It's used when the
	// user hasn't selected an application.
	GlobalScope = "global"

	applicationTable = "sys_scope"
	preferenceTable  = "sys_user_preference"

	// currentAppQuery selects the current user's "current application"
	// preference.
	currentAppQuery = "name=apps.current_app^userDYNAMIC90d1921e5f510100a9ad2572f2b477fe"
)

// Resolver compares file scopes with the instance's current application.
// It's not safe for concurrent use.
type Resolver struct {
	client remote.Client
	store  *meta.Store
	log    logrus.FieldLogger

	// State of the last comparison, for error reporting.
	currentApp  *meta.ApplicationMetadata
	fileApp     *meta.ApplicationMetadata
	fileScopeID string
}

// New creates a Resolver.
func New(client remote.Client, store *meta.Store, log logrus.FieldLogger) *Resolver {
	return &Resolver{client: client, store: store, log: log}
}

// RefreshAllScopes replaces the applications in the metadata store with the
// applications on the instance.
func (r *Resolver) RefreshAllScopes(ctx context.Context) error {
	records, err := r.client.List(ctx, applicationTable, remote.ListOptions{
		Fields: []string{"scope", "name"},
	})
	if err != nil {
		return errors.WithContext(err, "list applications")
	}

	apps := make([]meta.ApplicationMetadata, 0, len(records))
	for _, record := range records {
		apps = append(apps, meta.ApplicationMetadata{
			Scope:    record.Value("scope"),
			Name:     record.Value("name"),
			RemoteID: record.ID(),
		})
	}
	r.store.SetApplications(apps)
	r.log.WithField("count", len(apps)).Debug("Refreshed applications")
	return nil
}

// CurrentApplication fetches the user's current application from the
// instance. The preference can change at any time, so it's never cached
// between calls.
func (r *Resolver) CurrentApplication(ctx context.Context) (meta.ApplicationMetadata, error) {
	r.currentApp = nil

	prefs, err := r.client.List(ctx, preferenceTable, remote.ListOptions{
		Query:  currentAppQuery,
		Fields: []string{"value"},
	})
	if err != nil {
		return meta.ApplicationMetadata{}, errors.WithContext(err, "get preference")
	}

	appID := GlobalScope
	if len(prefs) > 0 && prefs[0].Value("value") != "" {
		appID = prefs[0].Value("value")
	}

	app, ok := r.store.FindApplication(appID)
	if !ok {
		return meta.ApplicationMetadata{}, errors.New("unknown application %q", appID)
	}
	r.currentApp = &app
	return app, nil
}

// IsFileInCurrentScope returns whether the file's record belongs to the
// current application. If the current application can't be determined,
// the file is allowed. If the file's application is unknown, it isn't.
func (r *Resolver) IsFileInCurrentScope(ctx context.Context, file meta.FileMetadata) bool {
	r.fileApp = nil
	r.fileScopeID = file.Scope

	current, err := r.CurrentApplication(ctx)
	if err != nil {
		r.log.WithError(err).Debug("Failed to get current application. Skipping scope check")
		return true
	}

	fileApp, ok := r.store.FindApplication(file.Scope)
	if !ok {
		return false
	}
	r.fileApp = &fileApp
	return fileApp.RemoteID == current.RemoteID
}

// MismatchError describes the last failed IsFileInCurrentScope check.
func (r *Resolver) MismatchError() error {
	fileApp := fmt.Sprintf("unknown (%s)", r.fileScopeID)
	if r.fileApp != nil {
		fileApp = r.fileApp.Name
	}

	currentApp := "unknown"
	if r.currentApp != nil {
		currentApp = r.currentApp.Name
	}
	return errors.ScopeMismatchError{
		FileApplication:    fileApp,
		CurrentApplication: currentApp,
	}
}
