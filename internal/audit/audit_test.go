package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	actor, target, tenant := uuid.New(), uuid.New(), uuid.New()
	logger.Record(context.Background(), audit.Entry{
		Event:    audit.EventRoleChanged,
		ActorID:  actor,
		TargetID: target,
		TenantID: &tenant,
		Details:  map[string]string{"from": "STAFF", "to": "MANAGER"},
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "audit", rec["msg"])
	assert.Equal(t, audit.EventRoleChanged, rec["event"])
	assert.Equal(t, actor.String(), rec["actor_id"])
	assert.Equal(t, target.String(), rec["target_id"])
	assert.Equal(t, tenant.String(), rec["tenant_id"])
	assert.Equal(t, "STAFF", rec["from"])
	assert.Equal(t, "MANAGER", rec["to"])
}

func TestRecord_OmitsEmptyTargetAndTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Record(context.Background(), audit.Entry{Event: audit.EventTenantCreated, ActorID: uuid.New()})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "target_id")
	assert.NotContains(t, rec, "tenant_id")
}
