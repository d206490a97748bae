package authorize

import (
	"context"
	"log/slog"
	"sync/atomic"

	psqlwatcher "github.com/IguteChung/casbin-psql-watcher"
	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	entadapter "github.com/casbin/ent-adapter"
)

// PolicyChannel is the Postgres NOTIFY channel replicas listen on.
const PolicyChannel = "billing_casbin_policy"

// DefaultModel mirrors casbin_model.conf and is used when no model path is
// configured.
const DefaultModel = `[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act, eft

[role_definition]
g = _, _, _
g2 = _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = (g(r.sub, p.sub, r.dom) || g2(r.sub, p.sub)) && (p.dom == "*" || p.dom == r.dom) && (p.obj == "*" || keyMatch2(r.obj, p.obj)) && (p.act == "*" || keyMatch(r.act, p.act))
`

var policyStale atomic.Bool

// IsPolicyHealthy is false after a watcher-triggered reload failed, until
// the next one succeeds. The readiness probe reports it.
func IsPolicyHealthy() bool { return !policyStale.Load() }

type CleanupFunc func(ctx context.Context)

func loadModel(modelPath string) (model.Model, error) {
	if modelPath == "" {
		return model.NewModelFromString(DefaultModel)
	}
	return model.NewModelFromFile(modelPath)
}

// NewEnforcer stores policy in Postgres through the ent adapter and reloads
// it whenever another replica publishes a change on PolicyChannel.
func NewEnforcer(modelPath, dsn string) (*casbin.DistributedEnforcer, CleanupFunc, error) {
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := entadapter.NewAdapter("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	e, err := casbin.NewDistributedEnforcer(m, adapter)
	if err != nil {
		return nil, nil, err
	}

	w, err := psqlwatcher.NewWatcherWithConnString(context.Background(), dsn, psqlwatcher.Option{Channel: PolicyChannel})
	if err != nil {
		return nil, nil, err
	}
	if err := w.SetUpdateCallback(func(msg string) {
		slog.Debug("casbin policy changed elsewhere", "message", msg)
		err := e.LoadPolicy()
		policyStale.Store(err != nil)
		if err != nil {
			slog.Error("casbin policy reload failed", "error", err)
		}
	}); err != nil {
		w.Close()
		return nil, nil, err
	}
	if err := e.SetWatcher(w); err != nil {
		w.Close()
		return nil, nil, err
	}
	e.EnableAutoSave(true)
	e.EnableEnforce(true)

	return e, func(context.Context) {
		w.Close()
		e.StopAutoLoadPolicy()
		slog.Info("casbin enforcer stopped")
	}, nil
}

// NewLocalEnforcer keeps policy in memory, optionally preloaded from a CSV
// file. Changes are never written back.
func NewLocalEnforcer(modelPath, policyPath string) (*casbin.DistributedEnforcer, error) {
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewDistributedEnforcer(m, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, err
	}
	e.EnableAutoSave(false)
	e.EnableEnforce(true)
	return e, nil
}
