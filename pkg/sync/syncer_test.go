package sync

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/remote"
	remoteMocks "github.com/sidkik/nowsync/pkg/remote/mocks"
	"github.com/sidkik/nowsync/pkg/scope"
	"github.com/sidkik/nowsync/pkg/ui"
)

var (
	testWorkspace = config.Workspace{Root: "/ws"}

	businessRules = config.TableRule{
		Folder:        "business_rules",
		Table:         "sys_script",
		Key:           "name",
		SubDirPattern: "<collection>/<when>",
		Fields:        []config.FieldMapping{{Field: "script", Extension: "js"}},
	}

	widgets = config.TableRule{
		Folder: "widgets",
		Table:  "sp_widget",
		Key:    "id",
		Fields: []config.FieldMapping{
			{Field: "template", Extension: "html", Name: "template"},
			{Field: "script", Extension: "js", Name: "server_script"},
		},
	}

	globalRef = remote.Ref("https://dev1.service-now.com/api/now/table/sys_scope/global", "global")
)

type fakeUI struct {
	choice string

	questions []string
	diffs     []string
	infos     []string
	errors    []string
	reports   []string
	completed int
}

func (u *fakeUI) Confirm(question string, choices ...string) (string, error) {
	u.questions = append(u.questions, question)
	return u.choice, nil
}

func (u *fakeUI) Progress(title string, cancellable bool) ui.Progress {
	return &fakeProgress{ui: u}
}

func (u *fakeUI) Diff(remoteContent, localPath string) error {
	u.diffs = append(u.diffs, localPath)
	return nil
}

func (u *fakeUI) Info(msg string) {
	u.infos = append(u.infos, msg)
}

func (u *fakeUI) Error(msg string) {
	u.errors = append(u.errors, msg)
}

type fakeProgress struct {
	ui *fakeUI
}

func (p *fakeProgress) Report(percent int, msg string) {
	p.ui.reports = append(p.ui.reports, fmt.Sprintf("%d%% %s", percent, msg))
}

func (p *fakeProgress) IsCancelled() bool {
	return false
}

func (p *fakeProgress) Complete() {
	p.ui.completed++
}

type testEnv struct {
	fs     afero.Fs
	client *remoteMocks.Client
	ui     *fakeUI
	store  *meta.Store
	clock  clockwork.FakeClock
	syncer *Syncer
}

func newTestEnv(t *testing.T, rules ...config.TableRule) *testEnv {
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{Version: "1.0", Tables: rules}, nil
	}
	return newTestEnvWithConfig(t)
}

func newTestEnvWithConfig(t *testing.T) *testEnv {
	logger, _ := logrusTest.NewNullLogger()
	env := &testEnv{
		fs:     afero.NewMemMapFs(),
		client: &remoteMocks.Client{},
		ui:     &fakeUI{},
		clock:  clockwork.NewFakeClock(),
	}
	env.store = meta.New(env.fs, testWorkspace, logger)
	env.syncer = New(Options{
		Fs:          env.fs,
		Workspace:   testWorkspace,
		Store:       env.store,
		Scopes:      scope.New(env.client, env.store, logger),
		Client:      env.client,
		UI:          env.ui,
		Log:         logger,
		InstanceURL: "https://dev1.service-now.com",
		Clock:       env.clock,
	})
	return env
}

func (env *testEnv) expectScopes() {
	env.client.On("List", mock.Anything, "sys_scope", mock.Anything).Return([]remote.Record{
		{"sys_id": remote.Scalar("global"), "scope": remote.Scalar("global"), "name": remote.Scalar("Global")},
		{"sys_id": remote.Scalar("42"), "scope": remote.Scalar("x_hr"), "name": remote.Scalar("HR")},
	}, nil)
}

func (env *testEnv) expectRecords(rule config.TableRule, records []remote.Record, err error) *mock.Call {
	return env.client.On("List", mock.Anything, rule.Table, remote.ListOptions{
		Query:  rule.Query,
		Fields: requiredFields(rule),
	}).Return(records, err)
}

func (env *testEnv) readFile(t *testing.T, path string) string {
	contents, err := afero.ReadFile(env.fs, path)
	require.NoError(t, err)
	return string(contents)
}

func businessRuleRecords() []remote.Record {
	return []remote.Record{
		{
			"sys_id":     remote.Scalar("br1"),
			"name":       remote.Scalar("Validate: input"),
			"collection": remote.Scalar("incident"),
			"when":       remote.Scalar("before"),
			"script":     remote.Scalar("(function() {\r\n})();\r\n"),
			"sys_scope":  globalRef,
		},
		{
			"sys_id":     remote.Scalar("br2"),
			"name":       remote.Scalar("Notify"),
			"collection": remote.Scalar("problem"),
			"script":     remote.Scalar("gs.info('hi');"),
			"sys_scope":  remote.Ref("https://dev1.service-now.com/api/now/table/sys_scope/42", "42"),
		},
		{
			// Protected by a policy.
			"sys_id":     remote.Scalar("br3"),
			"name":       remote.Scalar("Secret"),
			"collection": remote.Scalar("incident"),
			"when":       remote.Scalar("after"),
			"script":     remote.Scalar(""),
		},
	}
}

func TestResyncAll(t *testing.T) {
	env := newTestEnv(t, businessRules)
	env.expectScopes()
	env.expectRecords(businessRules, businessRuleRecords(), nil).Run(func(mock.Arguments) {
		env.clock.Advance(3 * time.Second)
	})

	// Stale files are removed.
	stalePath := "/ws/src/business_rules/stale.js"
	require.NoError(t, afero.WriteFile(env.fs, stalePath, []byte("old"), 0644))
	env.store.Append("business_rules", meta.FileMetadata{FilePath: stalePath})

	summary, err := env.syncer.ResyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Records: 3, Elapsed: 3 * time.Second}, summary)

	exists, err := afero.Exists(env.fs, stalePath)
	require.NoError(t, err)
	assert.False(t, exists)

	validatePath := "/ws/src/business_rules/incident/before/Validate  input.js"
	notifyPath := "/ws/src/business_rules/problem/NONE/Notify.js"
	assert.Equal(t, "(function() {\n})();\n", env.readFile(t, validatePath))
	assert.Equal(t, "gs.info('hi');", env.readFile(t, notifyPath))

	exists, err = afero.Exists(env.fs, "/ws/src/business_rules/incident/after/Secret.js")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []meta.FileMetadata{
		{
			FilePath: validatePath,
			RemoteID: "br1",
			Field:    "script",
			Hash:     Hash("(function() {\n})();\n"),
			Scope:    "global",
		},
		{
			FilePath: notifyPath,
			RemoteID: "br2",
			Field:    "script",
			Hash:     Hash("gs.info('hi');"),
			Scope:    "42",
		},
	}, env.store.TrackedFiles())

	app, ok := env.store.FindApplication("42")
	assert.True(t, ok)
	assert.Equal(t, "HR", app.Name)

	// The index was persisted.
	logger, _ := logrusTest.NewNullLogger()
	persisted := meta.New(env.fs, testWorkspace, logger)
	persisted.Load()
	assert.Equal(t, env.store.TrackedFiles(), persisted.TrackedFiles())
	assert.Equal(t, 3, persisted.FileCount())
	lastResync, ok := persisted.Global(meta.LastResyncKey)
	assert.True(t, ok)
	assert.Equal(t, env.clock.Now().UTC().Format(time.RFC3339), lastResync)

	assert.Equal(t, []string{"Sync finished. Elapsed time: 3s. Files created: 3"}, env.ui.infos)
	assert.Equal(t, []string{"0% sys_script (1 of 1)..."}, env.ui.reports)
	assert.Equal(t, 1, env.ui.completed)
	assert.Empty(t, env.ui.errors)
	env.client.AssertExpectations(t)
}

func TestResyncAllIdempotent(t *testing.T) {
	env := newTestEnv(t, businessRules, widgets)
	env.expectScopes()
	env.expectRecords(businessRules, businessRuleRecords(), nil)
	env.expectRecords(widgets, []remote.Record{
		{
			"sys_id":   remote.Scalar("w1"),
			"id":       remote.Scalar("my-widget"),
			"template": remote.Scalar("<div></div>"),
			"script":   remote.Scalar("(function() {})();"),
		},
	}, nil)

	_, err := env.syncer.ResyncAll(context.Background())
	require.NoError(t, err)
	firstFiles := env.store.TrackedFiles()
	firstCount := env.store.FileCount()
	firstIndex := env.readFile(t, testWorkspace.MetadataPath())

	_, err = env.syncer.ResyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstFiles, env.store.TrackedFiles())
	assert.Equal(t, firstCount, env.store.FileCount())
	assert.Equal(t, firstIndex, env.readFile(t, testWorkspace.MetadataPath()))

	for _, file := range firstFiles {
		hash, err := HashFile(env.fs, file.FilePath)
		assert.NoError(t, err)
		assert.Equal(t, file.Hash, hash)
	}
}

func TestResyncAllTableFailure(t *testing.T) {
	env := newTestEnv(t, widgets, businessRules)
	env.expectScopes()
	env.expectRecords(widgets, nil, errors.RemoteError{StatusCode: http.StatusInternalServerError})
	env.expectRecords(businessRules, businessRuleRecords(), nil)

	summary, err := env.syncer.ResyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Records)
	assert.Len(t, env.store.TrackedFiles(), 2)
	assert.Equal(t, []string{"Error while resyncing table sp_widget"}, env.ui.errors)
	env.client.AssertExpectations(t)
}

func TestResyncAllNotAuthenticated(t *testing.T) {
	env := newTestEnv(t, widgets, businessRules)
	env.expectScopes()
	env.expectRecords(widgets, nil, errors.WithContext(
		errors.RemoteError{StatusCode: http.StatusUnauthorized}, "list sp_widget"))

	_, err := env.syncer.ResyncAll(context.Background())
	assert.Equal(t, errors.ErrNotAuthenticated, err)
	assert.Empty(t, env.ui.infos)
	env.client.AssertNotCalled(t, "List", mock.Anything, "sys_script", mock.Anything)

	// The metadata is still saved.
	exists, err := afero.Exists(env.fs, testWorkspace.MetadataPath())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestResyncAllCancelled(t *testing.T) {
	var rules []config.TableRule
	for i := 1; i <= 5; i++ {
		rules = append(rules, config.TableRule{
			Folder: fmt.Sprintf("folder%d", i),
			Table:  fmt.Sprintf("table%d", i),
			Key:    "name",
			Fields: []config.FieldMapping{{Field: "script", Extension: "js"}},
		})
	}

	env := newTestEnv(t, rules...)
	env.expectScopes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i, rule := range rules[:2] {
		call := env.expectRecords(rule, []remote.Record{{
			"sys_id": remote.Scalar(fmt.Sprintf("id%d", i)),
			"name":   remote.Scalar("record"),
			"script": remote.Scalar("content"),
		}}, nil)

		// Cancel while the second table is being fetched. The fetch
		// still completes.
		if i == 1 {
			call.Run(func(mock.Arguments) { cancel() })
		}
	}

	summary, err := env.syncer.ResyncAll(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Records)

	for _, rule := range rules[2:] {
		env.client.AssertNotCalled(t, "List", mock.Anything, rule.Table, mock.Anything)
	}

	logger, _ := logrusTest.NewNullLogger()
	persisted := meta.New(env.fs, testWorkspace, logger)
	persisted.Load()
	tracked := persisted.TrackedFiles()
	require.Len(t, tracked, 2)
	assert.Equal(t, "/ws/src/folder1/record.js", tracked[0].FilePath)
	assert.Equal(t, "/ws/src/folder2/record.js", tracked[1].FilePath)
	_, ok := persisted.Global(meta.LastResyncKey)
	assert.False(t, ok, "a cancelled resync doesn't count as a full resync")
	assert.Equal(t, []string{"Sync finished. Elapsed time: 0s. Files created: 2"}, env.ui.infos)
}

func TestResyncAllBrokenConfig(t *testing.T) {
	configErr := errors.ConfigError{Path: "syncconfig.yaml", Reason: "no tables are configured"}
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{}, configErr
	}
	env := newTestEnvWithConfig(t)

	summary, err := env.syncer.ResyncAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	_, err = env.syncer.ResyncTable(context.Background(), "sys_script")
	assert.NoError(t, err)

	// The error is only shown once.
	assert.Equal(t, []string{configErr.FriendlyMessage()}, env.ui.errors)
	env.client.AssertExpectations(t)

	_, err = env.syncer.UploadFile(context.Background(), "/ws/src/business_rules/foo.js")
	assert.Equal(t, errors.ErrNoSyncConfig, err)
}

func TestLoadSyncConfigCreatesInitialConfig(t *testing.T) {
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{}, errors.FileNotFound{Path: testWorkspace.SyncConfigPath()}
	}
	var created bool
	createInitialSyncConfig = func(ws config.Workspace) (string, error) {
		created = true
		return ws.SyncConfigPath(), nil
	}
	defer func() { createInitialSyncConfig = config.CreateInitialSyncConfig }()

	env := newTestEnvWithConfig(t)
	assert.True(t, created)
	assert.Equal(t, []string{"Check your default sync config at /ws/.snconfig/syncconfig.yaml"},
		env.ui.infos)

	_, err := env.syncer.SyncConfig()
	assert.IsType(t, errors.ConfigError{}, err)

	// The created config is picked up by the next resync.
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{Tables: []config.TableRule{businessRules}}, nil
	}
	env.expectScopes()
	env.expectRecords(businessRules, nil, nil)

	_, err = env.syncer.ResyncAll(context.Background())
	assert.NoError(t, err)
	env.client.AssertExpectations(t)
}

func TestResyncTable(t *testing.T) {
	env := newTestEnv(t, businessRules, widgets)
	env.expectRecords(widgets, []remote.Record{
		{
			"sys_id":   remote.Scalar("w1"),
			"id":       remote.Scalar("my-widget"),
			"template": remote.Scalar("<div></div>"),
			"script":   remote.Scalar("(function() {})();"),
		},
	}, nil)

	// Other folders are untouched.
	otherPath := "/ws/src/business_rules/incident/before/Other.js"
	require.NoError(t, afero.WriteFile(env.fs, otherPath, []byte("other"), 0644))
	env.store.Append("business_rules", meta.FileMetadata{FilePath: otherPath})

	summary, err := env.syncer.ResyncTable(context.Background(), "sp_widget")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Records)

	// Both fields are stored in the record's directory.
	assert.Equal(t, "<div></div>", env.readFile(t, "/ws/src/widgets/my-widget/template.html"))
	assert.Equal(t, "(function() {})();", env.readFile(t, "/ws/src/widgets/my-widget/server_script.js"))
	assert.Equal(t, "other", env.readFile(t, otherPath))
	assert.Len(t, env.store.TrackedFiles(), 3)
	assert.Equal(t, []string{"Successfully pulled sp_widget"}, env.ui.infos)

	// Unknown tables are ignored.
	summary, err = env.syncer.ResyncTable(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	env.client.AssertExpectations(t)
}

func TestResyncFolder(t *testing.T) {
	env := newTestEnv(t, businessRules)
	env.expectRecords(businessRules, businessRuleRecords(), nil)

	summary, err := env.syncer.ResyncFolder(context.Background(), "business_rules")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Records)
	assert.Len(t, env.store.TrackedFiles(), 2)

	_, err = env.syncer.ResyncFolder(context.Background(), "missing")
	assert.NoError(t, err)
	env.client.AssertExpectations(t)
}

func TestResyncFolderErrors(t *testing.T) {
	env := newTestEnv(t, businessRules)
	env.expectRecords(businessRules, nil, errors.RemoteError{StatusCode: http.StatusUnauthorized}).Once()

	_, err := env.syncer.ResyncFolder(context.Background(), "business_rules")
	assert.Equal(t, errors.ErrNotAuthenticated, err)

	env.expectRecords(businessRules, nil, assert.AnError).Once()
	_, err = env.syncer.ResyncFolder(context.Background(), "business_rules")
	assert.Equal(t, errors.WithContext(errors.WithContext(assert.AnError, "fetch records"),
		"resync sys_script"), err)
}

func TestOperationInProgress(t *testing.T) {
	env := newTestEnv(t, businessRules)
	env.syncer.busy.Lock()
	defer env.syncer.busy.Unlock()

	_, err := env.syncer.ResyncAll(context.Background())
	assert.Equal(t, errors.ErrOperationInProgress, err)

	_, err = env.syncer.ResyncTable(context.Background(), "sys_script")
	assert.Equal(t, errors.ErrOperationInProgress, err)

	_, err = env.syncer.UploadFile(context.Background(), "/ws/src/business_rules/foo.js")
	assert.Equal(t, errors.ErrOperationInProgress, err)

	_, err = env.syncer.PullFile(context.Background(), "/ws/src/business_rules/foo.js")
	assert.Equal(t, errors.ErrOperationInProgress, err)
	env.client.AssertExpectations(t)
}

func TestSaveRecordWriteFailure(t *testing.T) {
	env := newTestEnv(t, widgets)
	env.syncer.fs = afero.NewReadOnlyFs(env.fs)

	env.syncer.saveRecord(widgets, "/ws/src/widgets", remote.Record{
		"sys_id":   remote.Scalar("w1"),
		"id":       remote.Scalar("my-widget"),
		"template": remote.Scalar("<div></div>"),
		"script":   remote.Scalar("(function() {})();"),
	})

	assert.Equal(t, []string{
		"Error synchronizing file /ws/src/widgets/my-widget/template.html",
		"Error synchronizing file /ws/src/widgets/my-widget/server_script.js",
	}, env.ui.errors)
	assert.Empty(t, env.store.TrackedFiles())
}
