package usecase_test

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// In-memory fakes for the domain ports. Each returns copies so tests can
// assert that failed operations left the stored rows untouched.

type memRunRepo struct {
	runs map[string]domain.Run
	seq  int
	err  error
}

func newMemRunRepo() *memRunRepo { return &memRunRepo{runs: map[string]domain.Run{}} }

func (r *memRunRepo) Create(_ domain.Context, run domain.Run) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.seq++
	run.ID = fmt.Sprintf("run-%d", r.seq)
	r.runs[run.ID] = run
	return run.ID, nil
}

func (r *memRunRepo) Get(_ domain.Context, id string) (domain.Run, error) {
	if r.err != nil {
		return domain.Run{}, r.err
	}
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
	chunks map[string]domain.Chunk // keyed run id + idx
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
	putErr  error
	getErr  error
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{objects: map[string][]byte{}} }

func (b *memBlobStore) Put(_ domain.Context, path, _ string, data []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[path] = data
	return nil
}

func (b *memBlobStore) Get(_ domain.Context, path string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (b *memBlobStore) SignedURL(path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", path, int(ttl.Seconds())), nil
}

// fakeAI answers chat and transcription calls with canned responses and
// records the last prompts it saw.
type fakeAI struct {
	chatResp  string
	chatErr   error
	imageResp string
	imageErr  error
	trQueue   []domain.Transcription
	tr        domain.Transcription
	trErr     error

	lastSystem string
	lastUser   string
	chatCalls  int
	trCalls    int
}

func (f *fakeAI) ChatJSON(_ domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	f.chatCalls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.chatResp, f.chatErr
}

func (f *fakeAI) ChatJSONWithImage(_ domain.Context, systemPrompt, userPrompt, _ string, _ []byte, _ int) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.imageResp, f.imageErr
}

func (f *fakeAI) Transcribe(_ domain.Context, _ string, _ []byte) (domain.Transcription, error) {
	f.trCalls++
	if f.trErr != nil {
		return domain.Transcription{}, f.trErr
	}
	if len(f.trQueue) > 0 {
		tr := f.trQueue[0]
		f.trQueue = f.trQueue[1:]
		return tr, nil
	}
	return f.tr, nil
}

type memEntitlementRepo struct {
	rows map[string]domain.Entitlement // keyed by checkout session id
	err  error
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{rows: map[string]domain.Entitlement{}}
}

func (r *memEntitlementRepo) UpsertByCheckoutSession(_ domain.Context, e domain.Entitlement) error {
	if r.err != nil {
		return r.err
	}
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

type fakeCheckout struct {
	sessions  map[string]domain.CheckoutSession
	createErr error
	seq       int
}

func newFakeCheckout() *fakeCheckout { return &fakeCheckout{sessions: map[string]domain.CheckoutSession{}} }

func (c *fakeCheckout) CreateCheckoutSession(_ domain.Context, plan domain.Plan, id domain.Identity) (domain.CheckoutSession, error) {
	if c.createErr != nil {
		return domain.CheckoutSession{}, c.createErr
	}
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

var errUpstream = errors.New("upstream unavailable")
