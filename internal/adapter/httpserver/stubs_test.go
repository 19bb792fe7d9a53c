package httpserver_test

import (
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pitchpractice/pitchpractice/internal/adapter/httpserver"
	"github.com/pitchpractice/pitchpractice/internal/app"
	"github.com/pitchpractice/pitchpractice/internal/config"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

const testJWTSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		AppEnv:           "test",
		MaxUploadMB:      25,
		SignedURLTTL:     15 * time.Minute,
		RateLimitPerMin:  1000,
		RequestTimeout:   5 * time.Second,
		CORSAllowOrigins: "*",
		AuthJWTSecret:    testJWTSecret,
	}
}

func makeToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// wavBytes sniffs as audio/wav.
func wavBytes() []byte {
	return append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
}

type memRunRepo struct {
	runs map[string]domain.Run
	seq  int
}

func newMemRunRepo() *memRunRepo { return &memRunRepo{runs: map[string]domain.Run{}} }

func (r *memRunRepo) Create(_ domain.Context, run domain.Run) (string, error) {
	r.seq++
	run.ID = fmt.Sprintf("run-%d", r.seq)
	r.runs[run.ID] = run
	return run.ID, nil
}

func (r *memRunRepo) Get(_ domain.Context, id string) (domain.Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return run, nil
}

func (r *memRunRepo) UpdateStatus(_ domain.Context, id string, status domain.RunStatus, errMsg *string) error {
	run, ok := r.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	run.Status = status
	if errMsg != nil {
		run.Error = *errMsg
	}
	r.runs[id] = run
	return nil
}

func (r *memRunRepo) SetAudioPath(_ domain.Context, id, path string) error {
	run, ok := r.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	run.AudioPath = path
	r.runs[id] = run
	return nil
}

func (r *memRunRepo) SetTranscript(_ domain.Context, id, transcript string, wordCount int, durationSeconds float64) error {
	run, ok := r.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	run.Transcript = transcript
	run.WordCount = wordCount
	run.DurationSeconds = durationSeconds
	run.Status = domain.RunTranscribed
	run.Error = ""
	r.runs[id] = run
	return nil
}

func (r *memRunRepo) SetAnalysis(_ domain.Context, id string, res domain.AnalysisResult) error {
	run, ok := r.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	run.Analysis = &res
	run.Status = domain.RunAnalyzed
	run.Error = ""
	r.runs[id] = run
	return nil
}

func (r *memRunRepo) SetOwner(_ domain.Context, id, userID string) error {
	run, ok := r.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	run.UserID = &userID
	r.runs[id] = run
	return nil
}

type memRubricRepo struct {
	rubrics map[string]domain.Rubric
	seq     int
}

func newMemRubricRepo() *memRubricRepo { return &memRubricRepo{rubrics: map[string]domain.Rubric{}} }

func (r *memRubricRepo) Create(_ domain.Context, rb domain.Rubric) (string, error) {
	r.seq++
	if rb.ID == "" {
		rb.ID = fmt.Sprintf("rubric-%d", r.seq)
	}
	r.rubrics[rb.ID] = rb
	return rb.ID, nil
}

func (r *memRubricRepo) Get(_ domain.Context, id string) (domain.Rubric, error) {
	rb, ok := r.rubrics[id]
	if !ok {
		return domain.Rubric{}, domain.ErrNotFound
	}
	return rb, nil
}

func (r *memRubricRepo) ListForOwner(_ domain.Context, ownerID *string) ([]domain.Rubric, error) {
	var out []domain.Rubric
	for _, rb := range r.rubrics {
		if rb.IsTemplate || (ownerID != nil && rb.OwnerID != nil && *rb.OwnerID == *ownerID) {
			out = append(out, rb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRubricRepo) EarliestTemplate(_ domain.Context) (domain.Rubric, error) {
	var best domain.Rubric
	found := false
	for _, rb := range r.rubrics {
		if !rb.IsTemplate {
			continue
		}
		if !found || rb.CreatedAt.Before(best.CreatedAt) {
			best = rb
			found = true
		}
	}
	if !found {
		return domain.Rubric{}, domain.ErrNotFound
	}
	return best, nil
}

type memChunkRepo struct {
	chunks map[string]domain.Chunk
	seq    int
}

func newMemChunkRepo() *memChunkRepo { return &memChunkRepo{chunks: map[string]domain.Chunk{}} }

func (r *memChunkRepo) Upsert(_ domain.Context, c domain.Chunk) (string, error) {
	key := fmt.Sprintf("%s/%d", c.RunID, c.Idx)
	if prev, ok := r.chunks[key]; ok {
		c.ID = prev.ID
	} else {
		r.seq++
		c.ID = fmt.Sprintf("chunk-%d", r.seq)
	}
	r.chunks[key] = c
	return c.ID, nil
}

func (r *memChunkRepo) ListByRun(_ domain.Context, runID string) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, c := range r.chunks {
		if c.RunID == runID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	return out, nil
}

type memBlobStore struct {
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{objects: map[string][]byte{}} }

func (b *memBlobStore) Put(_ domain.Context, path, _ string, data []byte) error {
	b.objects[path] = data
	return nil
}

func (b *memBlobStore) Get(_ domain.Context, path string) ([]byte, error) {
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (b *memBlobStore) SignedURL(path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", path, int(ttl.Seconds())), nil
}

type memEntitlementRepo struct {
	rows map[string]domain.Entitlement
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{rows: map[string]domain.Entitlement{}}
}

func (r *memEntitlementRepo) UpsertByCheckoutSession(_ domain.Context, e domain.Entitlement) error {
	if prev, ok := r.rows[e.CheckoutSessionID]; ok && prev.UserID != nil {
		e.UserID = prev.UserID
	}
	r.rows[e.CheckoutSessionID] = e
	return nil
}

func (r *memEntitlementRepo) ListActive(_ domain.Context, id domain.Identity, now time.Time) ([]domain.Entitlement, error) {
	var out []domain.Entitlement
	for _, e := range r.rows {
		if !e.Active(now) {
			continue
		}
		owned := (id.UserID != nil && e.UserID != nil && *id.UserID == *e.UserID) ||
			(e.SessionID != "" && e.SessionID == id.SessionID)
		if owned {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEntitlementRepo) CountByPlan(_ domain.Context) (map[domain.Plan]int64, error) {
	out := map[domain.Plan]int64{}
	for _, e := range r.rows {
		out[e.Plan]++
	}
	return out, nil
}

type fakeAI struct {
	chatResp  string
	chatErr   error
	imageResp string
	imageErr  error
	tr        domain.Transcription
	trErr     error
}

func (f *fakeAI) ChatJSON(_ domain.Context, _, _ string, _ int) (string, error) {
	return f.chatResp, f.chatErr
}

func (f *fakeAI) ChatJSONWithImage(_ domain.Context, _, _, _ string, _ []byte, _ int) (string, error) {
	return f.imageResp, f.imageErr
}

func (f *fakeAI) Transcribe(_ domain.Context, _ string, _ []byte) (domain.Transcription, error) {
	return f.tr, f.trErr
}

type fakeCheckout struct {
	sessions map[string]domain.CheckoutSession
	seq      int
}

func newFakeCheckout() *fakeCheckout { return &fakeCheckout{sessions: map[string]domain.CheckoutSession{}} }

func (c *fakeCheckout) CreateCheckoutSession(_ domain.Context, plan domain.Plan, id domain.Identity) (domain.CheckoutSession, error) {
	c.seq++
	sess := domain.CheckoutSession{
		ID:        fmt.Sprintf("cs_%d", c.seq),
		URL:       fmt.Sprintf("https://checkout.test/cs_%d", c.seq),
		Plan:      plan,
		UserID:    id.UserID,
		SessionID: id.SessionID,
	}
	c.sessions[sess.ID] = sess
	return sess, nil
}

func (c *fakeCheckout) GetCheckoutSession(_ domain.Context, sessionID string) (domain.CheckoutSession, error) {
	sess, ok := c.sessions[sessionID]
	if !ok {
		return domain.CheckoutSession{}, domain.ErrNotFound
	}
	return sess, nil
}

type fakeWebhookParser struct {
	sess domain.CheckoutSession
	ok   bool
	err  error
}

func (p *fakeWebhookParser) ParseWebhook(_ []byte, _ string) (domain.CheckoutSession, bool, error) {
	return p.sess, p.ok, p.err
}

// fixture bundles the fakes behind a fully routed handler.
type fixture struct {
	handler  http.Handler
	runs     *memRunRepo
	rubrics  *memRubricRepo
	chunks   *memChunkRepo
	blobs    *memBlobStore
	ents     *memEntitlementRepo
	ai       *fakeAI
	checkout *fakeCheckout
	webhooks *fakeWebhookParser
}

func newFixture(_ *testing.T) *fixture {
	f := &fixture{
		runs:     newMemRunRepo(),
		rubrics:  newMemRubricRepo(),
		chunks:   newMemChunkRepo(),
		blobs:    newMemBlobStore(),
		ents:     newMemEntitlementRepo(),
		ai:       &fakeAI{},
		checkout: newFakeCheckout(),
		webhooks: &fakeWebhookParser{},
	}
	cfg := testConfig()
	srv := httpserver.NewServer(
		cfg,
		usecase.NewRubricService(f.rubrics, f.ai, cfg.MaxCompletionToks),
		usecase.NewRunService(f.runs, f.rubrics, f.chunks, f.blobs, f.ai, cfg.SignedURLTTL),
		usecase.NewAnalyzeService(f.runs, f.rubrics, f.ai, cfg.PromptTokenBudget, cfg.MaxCompletionToks),
		usecase.NewBillingService(f.ents, f.checkout),
		f.webhooks,
		nil, nil, nil,
	)
	f.handler = app.BuildRouter(cfg, srv)
	return f
}
