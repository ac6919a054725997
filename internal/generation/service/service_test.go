package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	gendomain "github.com/noxloop/digiforge/internal/generation/domain"
	genservice "github.com/noxloop/digiforge/internal/generation/service"
	"github.com/noxloop/digiforge/internal/guard"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/metrics"
	productdomain "github.com/noxloop/digiforge/internal/product/domain"
	productrepo "github.com/noxloop/digiforge/internal/product/repository"
	"github.com/noxloop/digiforge/internal/rag"
	usagedomain "github.com/noxloop/digiforge/internal/usage/domain"
	usagerepo "github.com/noxloop/digiforge/internal/usage/repository"
	usageservice "github.com/noxloop/digiforge/internal/usage/service"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
	workspacerepo "github.com/noxloop/digiforge/internal/workspace/repository"
	workspaceservice "github.com/noxloop/digiforge/internal/workspace/service"
)

type stubLLM struct {
	available   bool
	content     string
	err         error
	lastPrompt  string
	lastSystem  string
	generations int
}

func (s *stubLLM) Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	s.generations++
	s.lastPrompt = prompt
	s.lastSystem = system
	if s.err != nil {
		return "", s.err
	}
	return s.content, nil
}

func (s *stubLLM) Available(ctx context.Context) bool { return s.available }

func (s *stubLLM) Status(ctx context.Context) llm.Status {
	return llm.Status{Provider: "stub", Model: "stub", Available: s.available}
}

type stubRAG struct {
	docs []rag.Document
}

func (s *stubRAG) Retrieve(ctx context.Context, query string, topK int) []rag.Document {
	return s.docs
}

func (s *stubRAG) Available(ctx context.Context) bool { return len(s.docs) > 0 }

func (s *stubRAG) Status() rag.Status { return rag.Status{Enabled: len(s.docs) > 0} }

type fixture struct {
	svc        gendomain.Service
	workspaces workspacedomain.Service
	guard      *guard.Guard
	db         *gorm.DB
	llm        *stubLLM
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE workspaces (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			plan TEXT NOT NULL,
			credits BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE usage_records (
			id BIGINT PRIMARY KEY,
			workspace_id BIGINT NOT NULL,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			credits BIGINT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			public_id TEXT NOT NULL UNIQUE,
			workspace_id BIGINT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			product_type TEXT NOT NULL,
			topic TEXT NOT NULL,
			target_audience TEXT,
			tone TEXT,
			language TEXT,
			content TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newFixture(t *testing.T, llmStub *stubLLM, ragStub *stubRAG) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := metrics.New()

	holder, err := config.NewGuardConfigHolder()
	require.NoError(t, err)
	g := guard.New(zap.NewNop(), clk, holder, guard.NewMemoryStore())

	workspaces := workspaceservice.NewService(workspaceservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		GenID:   node,
		Repo:    workspacerepo.New(),
		Metrics: m,
	})
	usage := usageservice.NewService(usageservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
		Repo:  usagerepo.New(),
	})

	svc := genservice.NewService(genservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      clk,
		GenID:      node,
		Guard:      g,
		Workspaces: workspaces,
		Usage:      usage,
		LLM:        llmStub,
		RAG:        ragStub,
		Products:   productrepo.New(),
		Metrics:    m,
	})
	return &fixture{svc: svc, workspaces: workspaces, guard: g, db: db, llm: llmStub}
}

func productRequest(workspaceID snowflake.ID) gendomain.ProductRequest {
	return gendomain.ProductRequest{
		WorkspaceID:    workspaceID,
		UserID:         "user-1",
		Title:          "Launch Playbook",
		ProductType:    productdomain.TypeGuide,
		Topic:          "email marketing",
		TargetAudience: "solo founders",
		Tone:           "practical",
		Language:       "en",
	}
}

func TestGenerateProductChargesAndRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: true, content: "# Guide\nbody"}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	product, err := f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	require.NoError(t, err)
	assert.Contains(t, product.PublicID, "prod_")
	assert.Equal(t, "# Guide\nbody", product.Content)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), got.Credits)

	var records []usagedomain.UsageRecord
	require.NoError(t, f.db.Where("workspace_id = ?", ws.ID).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, usagedomain.ActionGeneration, records[0].Action)
	assert.Equal(t, int64(5), records[0].Credits)
}

func TestGenerateProductInsufficientCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: true, content: "x"}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "free", 3)
	require.NoError(t, err)

	_, err = f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	assert.ErrorIs(t, err, workspacedomain.ErrInsufficientCredit)
	assert.Contains(t, err.Error(), "required 5, available 3")
	assert.Zero(t, f.llm.generations, "refused requests must not reach the provider")

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Credits)
}

func TestGenerateProductProviderUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: false}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	_, err = f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	assert.ErrorIs(t, err, gendomain.ErrUnavailable)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Credits, "unavailable provider must not charge")
}

func TestGenerateProductProviderError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: true, err: errors.New("upstream 500")}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	_, err = f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	assert.ErrorIs(t, err, gendomain.ErrFailed)

	got, err := f.workspaces.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Credits, "failed generation must not charge")

	var count int64
	require.NoError(t, f.db.Model(&usagedomain.UsageRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGenerateProductAbuseCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: true, content: "x"}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "enterprise", 1000)
	require.NoError(t, err)

	f.guard.RecordCreditUsage("user-1", 100)

	_, err = f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	assert.ErrorIs(t, err, guard.ErrAbuseCeiling)
	assert.Zero(t, f.llm.generations)
}

func TestGenerateProductPrependsRetrievedContext(t *testing.T) {
	ctx := context.Background()
	llmStub := &stubLLM{available: true, content: "x"}
	f := newFixture(t, llmStub, &stubRAG{docs: []rag.Document{
		{Content: "audiences respond to urgency", Source: "playbook"},
	}})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	_, err = f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	require.NoError(t, err)

	assert.Contains(t, llmStub.lastPrompt, "## Relevant Context")
	assert.Contains(t, llmStub.lastPrompt, "### Source 1: playbook")
	assert.Contains(t, llmStub.lastPrompt, "email marketing")
}

func TestProductLookupAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubLLM{available: true, content: "x"}, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	product, err := f.svc.GenerateProduct(ctx, productRequest(ws.ID))
	require.NoError(t, err)

	listed, err := f.svc.ListProducts(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	got, err := f.svc.GetProduct(ctx, ws.ID, product.PublicID)
	require.NoError(t, err)
	assert.Equal(t, product.Title, got.Title)

	_, err = f.svc.GetProduct(ctx, ws.ID, "prod_missing")
	assert.ErrorIs(t, err, productdomain.ErrNotFound)

	require.NoError(t, f.svc.DeleteProduct(ctx, ws.ID, product.PublicID))
	assert.ErrorIs(t, f.svc.DeleteProduct(ctx, ws.ID, product.PublicID), productdomain.ErrNotFound)
}

func TestGenerateProductUnknownType(t *testing.T) {
	ctx := context.Background()
	llmStub := &stubLLM{available: true, content: "x"}
	f := newFixture(t, llmStub, &stubRAG{})

	ws, err := f.workspaces.Create(ctx, "acme", "user-1", "starter", 50)
	require.NoError(t, err)

	req := productRequest(ws.ID)
	req.ProductType = "webinar"
	_, err = f.svc.GenerateProduct(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, llmStub.lastPrompt, "practical guide", "unknown types fall back to the guide template")
}
