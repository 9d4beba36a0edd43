// Package cycle implements the engine's central state machine, driving a
// conversation from its opening question through search cycles to
// termination (spec §4.O). It owns the wiring between every other
// component — embeddings, search, compression, dimension tracking — the
// way the teacher's top-level service structs wire concrete dependencies
// together rather than hiding them behind narrow interfaces throughout.
package cycle

import (
	"context"
	"fmt"
	"strings"

	"ire/internal/citations"
	"ire/internal/compress"
	"ire/internal/config"
	"ire/internal/core"
	"ire/internal/embedding"
	"ire/internal/feedback"
	"ire/internal/fetch"
	"ire/internal/llm"
	"ire/internal/quality"
	"ire/internal/repeatwindow"
	"ire/internal/search"
	"ire/internal/semantic"
	"ire/internal/sourcetable"
	"ire/internal/synthesis"
	"ire/internal/tokencount"
	"ire/internal/topics"
)

// Session bundles a conversation's mutable ResearchState together with
// the engine-internal objects that carry semantic memory across cycles
// (the PCA basis, the running trajectory, and the per-URL source
// table). These live outside core.ResearchState to avoid a package
// cycle (semantic and sourcetable both import core).
type Session struct {
	State        *core.ResearchState
	Dimensions   *semantic.DimensionTracker
	Trajectory   *semantic.TrajectoryAccumulator
	PDV          semantic.PDVResult
	Sources      *sourcetable.Table
	RepeatWindow *repeatwindow.Manager
}

// NewSession creates a fresh Session for a new conversation.
func NewSession(userID, firstMessageID, question string, repeatWindowFactor float64) *Session {
	return &Session{
		State:        core.NewResearchState(userID, firstMessageID, question),
		Sources:      sourcetable.New(),
		RepeatWindow: repeatwindow.New(repeatWindowFactor),
	}
}

// Controller drives a Session through the INIT/AWAITING_FEEDBACK/CYCLING
// /COMPRESSING/SYNTHESIZING state machine.
type Controller struct {
	llmClient    *llm.Client
	embedder     *embedding.Client
	counter      *tokencount.Counter
	fetcher      *fetch.Fetcher
	compressor   *compress.Compressor
	orchestrator *search.Orchestrator
	filter       *quality.Filter
	synthesizer  *synthesis.Engine
	verifier     *citations.Verifier

	cfg           config.IRE
	researchModel string
	interactive   bool
}

// New wires a Controller from its concrete dependencies.
func New(
	llmClient *llm.Client,
	embedder *embedding.Client,
	counter *tokencount.Counter,
	fetcher *fetch.Fetcher,
	compressor *compress.Compressor,
	orchestrator *search.Orchestrator,
	filter *quality.Filter,
	synthesizer *synthesis.Engine,
	verifier *citations.Verifier,
	cfg config.IRE,
	researchModel string,
	interactive bool,
) *Controller {
	return &Controller{
		llmClient:     llmClient,
		embedder:      embedder,
		counter:       counter,
		fetcher:       fetcher,
		compressor:    compressor,
		orchestrator:  orchestrator,
		filter:        filter,
		synthesizer:   synthesizer,
		verifier:      verifier,
		cfg:           cfg,
		researchModel: researchModel,
		interactive:   interactive,
	}
}

// Init runs the INIT phase: generates opening queries, gathers initial
// results, and builds the outline. Transitions to AWAITING_FEEDBACK if
// the controller is interactive, otherwise straight to CYCLING.
func (c *Controller) Init(ctx context.Context, sess *Session) error {
	queries, err := c.generateOpeningQueries(ctx, sess.State.OriginalQuestion)
	if err != nil {
		return err
	}
	sess.State.SearchHistory = append(sess.State.SearchHistory, queries...)

	var gathered []core.SearchResult
	for _, q := range queries {
		qEmb, err := c.embedder.Embed(ctx, q)
		if err != nil {
			continue
		}
		results, err := c.orchestrator.Search(ctx, q, qEmb, c.searchOptions(sess, nil))
		if err != nil {
			continue
		}
		gathered = append(gathered, results...)
	}
	sess.State.ResultHistory = append(sess.State.ResultHistory, gathered...)

	outline, err := c.buildOutline(ctx, sess.State.OriginalQuestion, gathered)
	if err != nil {
		return err
	}
	sess.State.Outline = outline

	flat := outline.Flat()
	embeddings := make([]core.Embedding, 0, len(flat))
	for _, item := range flat {
		e, err := c.embedder.Embed(ctx, item)
		if err != nil || e == nil {
			continue
		}
		embeddings = append(embeddings, e)
	}
	if len(embeddings) > 0 {
		sess.Dimensions = semantic.NewDimensionTracker(embeddings)
		sess.Trajectory = semantic.NewTrajectoryAccumulator(len(embeddings[0]))
	}

	outlineText := strings.Join(flat, " ")
	outlineEmb, err := c.embedder.Embed(ctx, outlineText)
	if err == nil {
		sess.State.OutlineEmbedding = outlineEmb
	}

	if c.interactive {
		sess.State.Status = core.StatusAwaitingFeedback
	} else {
		sess.State.Status = core.StatusCycling
	}
	return nil
}

// RunCycle executes one CYCLING iteration and reports whether the
// research loop should terminate after it.
func (c *Controller) RunCycle(ctx context.Context, sess *Session) (done bool, err error) {
	cycleIndex := len(sess.State.Analyses)

	gap := c.gapVector(sess)
	var trajectory core.Embedding
	if sess.Trajectory != nil {
		trajectory = sess.Trajectory.GetTrajectory()
	}

	active := sess.State.ActiveTopics()
	topicEmbeddings := c.embedAll(ctx, active)

	ranked := topics.Rank(active, topics.Input{
		TopicEmbeddings: topicEmbeddings,
		CompletedTopics: sess.State.Completed,
		RecentResults:   recentWindow(sess.State.ResultHistory, 10),
		TopicUsageCount: sess.State.TopicUsageCount,
		Trajectory:      trajectory,
		PDV:             sess.PDV.PDV,
		PDVImpact:       sess.PDV.Impact,
		Gap:             gap,
		CycleIndex:      cycleIndex,
		MaxCycles:       c.cfg.MaxCycles,
	}, topics.DefaultWeights())

	top := ranked
	if len(top) > 10 {
		top = top[:10]
	}

	var transform *semantic.Transformer
	if sess.Dimensions != nil && len(sess.State.OutlineEmbedding) > 0 {
		transform = semantic.BuildTransformer(
			len(sess.State.OutlineEmbedding),
			sess.Dimensions.Eigenvectors(),
			sess.Dimensions.Variance(),
			sess.PDV.PDV,
			sess.PDV.Strength,
			sess.PDV.Impact,
			trajectory,
			gap,
			cycleIndex,
			c.cfg.MaxCycles,
			semantic.TransformerConfig{
				PDVFadeFraction:      c.cfg.PDVFadeFraction,
				GapFadeFraction:      c.cfg.GapFadeFraction,
				TrajectoryMomentum:   c.cfg.TrajectoryMomentum,
				GapExplorationWeight: c.cfg.GapExplorationWeight,
				WeightCap:            c.cfg.TransformWeightCap,
			},
		)
	}

	queries := c.generateQueriesForTopics(top, 4)
	sess.State.SearchHistory = append(sess.State.SearchHistory, queries...)

	var cycleResults []core.SearchResult
	var queryEmbeddings, resultEmbeddings []core.Embedding
	for _, q := range queries {
		qEmb, err := c.embedder.Embed(ctx, q)
		if err != nil {
			continue
		}
		if transform != nil && qEmb != nil {
			qEmb = transform.Apply(qEmb)
		}
		queryEmbeddings = append(queryEmbeddings, qEmb)

		results, err := c.orchestrator.Search(ctx, q, qEmb, c.searchOptions(sess, nil))
		if err != nil {
			continue
		}
		kept, _ := c.filter.FilterAll(ctx, q, results)

		for _, r := range kept {
			processed, rEmb, perr := c.processResult(ctx, sess, q, r, cycleIndex)
			if perr != nil {
				continue
			}
			cycleResults = append(cycleResults, processed)
			if rEmb != nil {
				resultEmbeddings = append(resultEmbeddings, rEmb)
			}
		}
	}
	sess.State.ResultHistory = append(sess.State.ResultHistory, cycleResults...)

	if sess.Trajectory != nil && len(queryEmbeddings) > 0 {
		sess.Trajectory.AddCycleData(queryEmbeddings, resultEmbeddings, c.cfg.TrajectoryMomentum)
	}

	analysis, err := c.classifyTopics(ctx, sess, active, cycleResults, cycleIndex)
	if err != nil {
		return false, err
	}
	applyAnalysis(sess.State, analysis)

	return c.shouldTerminate(sess.State, cycleIndex+1), nil
}

// Run drives the controller through INIT, then CYCLING, pausing to
// return control to the caller when awaiting feedback and stopping once
// the loop terminates. It does not perform COMPRESSING/SYNTHESIZING;
// those are invoked explicitly by the caller once cycling is done.
func (c *Controller) Run(ctx context.Context, sess *Session) error {
	if sess.State.Status == core.StatusInit {
		if err := c.Init(ctx, sess); err != nil {
			return err
		}
	}
	if sess.State.Status == core.StatusAwaitingFeedback {
		return nil
	}
	for sess.State.Status == core.StatusCycling {
		done, err := c.RunCycle(ctx, sess)
		if err != nil {
			return err
		}
		if done {
			sess.State.Status = core.StatusCompressing
		}
	}
	return nil
}

// ApplyFeedback handles the AWAITING_FEEDBACK turn (spec §4.O): it hands
// the user's message to the FeedbackProcessor, removes the topics the
// user rejected, searches for replacement topics to cover the gap left
// behind, grafts them onto the outline, and resumes CYCLING.
func (c *Controller) ApplyFeedback(ctx context.Context, sess *Session, message string) error {
	active := sess.State.ActiveTopics()
	dec, err := feedback.Process(ctx, c.llmClient, c.researchModel, message, active)
	if err != nil {
		return err
	}

	for _, t := range dec.Removed {
		sess.State.Irrelevant[t] = struct{}{}
		delete(sess.State.Partial, t)
	}

	keptEmbeddings := c.embedTopics(ctx, dec.Kept)
	removedEmbeddings := c.embedTopics(ctx, dec.Removed)
	sess.PDV = semantic.ComputePDV(keptEmbeddings, removedEmbeddings, len(active))

	if dec.ReplacementCount > 0 {
		replacements := c.generateReplacementTopics(ctx, sess.State.OriginalQuestion, dec.Kept, dec.Removed, dec.ReplacementCount)
		if len(replacements) > 0 {
			sess.State.Outline.Nodes = append(sess.State.Outline.Nodes, core.OutlineNode{
				Topic:     "feedback refinement",
				Subtopics: replacements,
			})
		}
	}

	sess.State.Status = core.StatusCycling
	return nil
}

// generateReplacementTopics runs the grouped refinement search: it asks
// the model for n fresh topics that substitute for the ones the user
// removed while staying faithful to the ones they kept, falling back to
// simple angle variants on the kept topics if the model is unreachable.
func (c *Controller) generateReplacementTopics(ctx context.Context, question string, kept, removed []string, n int) []string {
	prompt := fmt.Sprintf(
		"Research question: %s\n\nTopics the user wants to keep:\n%s\nTopics the user removed:\n%s\nPropose exactly %d replacement topics that better match what the user wants to keep exploring, without overlapping the removed topics. Reply with one topic per line.",
		question, bulletList(kept), bulletList(removed), n,
	)
	reply, err := c.llmClient.Complete(ctx, c.researchModel, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.3)
	if err != nil {
		return deterministicReplacementTopics(kept, n)
	}
	lines := parseLines(reply, n)
	if len(lines) == 0 {
		return deterministicReplacementTopics(kept, n)
	}
	return lines
}

// Compress implements the stepped compression pass between CYCLING and
// SYNTHESIZING (spec §4.O): the older half of the result history is
// compressed at the nominal ratio, the newer half one level more
// aggressively (a lower ratio), on the theory that older results have
// already had a chance to contribute to the trajectory and outline
// while newer ones are more likely to be redundant with what survived.
func (c *Controller) Compress(ctx context.Context, sess *Session, nominalRatio float64) error {
	history := sess.State.ResultHistory
	mid := len(history) / 2

	aggressiveRatio := nominalRatio * 0.7
	if aggressiveRatio < 0.1 {
		aggressiveRatio = 0.1
	}

	for i := range history {
		ratio := nominalRatio
		if i >= mid {
			ratio = aggressiveRatio
		}
		queryEmb, _ := c.embedder.Embed(ctx, sess.State.OriginalQuestion)
		compressed, err := c.compressor.Compress(ctx, compress.Request{
			Text:           history[i].Snippet,
			QueryEmbedding: queryEmb,
			PDV:            sess.PDV.PDV,
			PDVImpact:      sess.PDV.Impact,
			Ratio:          ratio,
			ChunkLevel:     3,
		})
		if err != nil {
			continue
		}
		history[i].Snippet = compressed
	}

	sess.State.Status = core.StatusSynthesizing
	return nil
}

// Synthesize runs the SYNTHESIZING phase: generates the report body from
// the (now compressed) result history, verifies its citations against
// source content, and marks the conversation done.
func (c *Controller) Synthesize(ctx context.Context, sess *Session) (synthesis.Report, error) {
	assignGlobalID := func(url string) int {
		return sess.Sources.Cite(url, "report")
	}
	report, err := c.synthesizer.Synthesize(ctx, sess.State.OriginalQuestion, sess.State.Outline, sess.State.ResultHistory, assignGlobalID)
	if err != nil {
		return synthesis.Report{}, err
	}

	if err := c.verifier.Verify(ctx, report.Sections, report.Bibliography); err != nil {
		return report, err
	}

	sess.State.Status = core.StatusDone
	sess.State.ResearchCompleted = true
	return report, nil
}

// shouldTerminate implements the exit conditions of spec §4.O: all
// topics addressed, OR completed-fraction exceeds the configured
// threshold once the minimum cycle count is reached, OR the maximum
// cycle count is reached.
func (c *Controller) shouldTerminate(state *core.ResearchState, cyclesRun int) bool {
	if len(state.ActiveTopics()) == 0 {
		return true
	}
	total := len(state.Outline.Flat())
	if total > 0 {
		fraction := float64(len(state.Completed)) / float64(total)
		if fraction > c.cfg.CompletedFractionExit && cyclesRun >= c.cfg.MinCycles {
			return true
		}
	}
	return cyclesRun >= c.cfg.MaxCycles
}

// processResult fetches, chunks, embeds, and compresses one search
// result, registering it in the source table and returning the
// compressed result plus a representative embedding for trajectory
// tracking.
func (c *Controller) processResult(ctx context.Context, sess *Session, query string, r core.SearchResult, cycleIndex int) (core.SearchResult, core.Embedding, error) {
	fetched, err := c.fetcher.Fetch(ctx, r.URL)
	if err != nil {
		return r, nil, err
	}

	windowed := sess.RepeatWindow.Window(ctx, c.embedder, r.URL, query, fetched.Text, c.cfg.MaxResultTokens*4)

	queryEmb, err := c.embedder.Embed(ctx, query)
	if err != nil {
		queryEmb = nil
	}

	compressed, err := c.compressor.Compress(ctx, compress.Request{
		Text:           windowed,
		QueryEmbedding: queryEmb,
		PDV:            sess.PDV.PDV,
		PDVImpact:      sess.PDV.Impact,
		TokenCap:       c.cfg.MaxResultTokens,
		ChunkLevel:     3,
		FromPDF:        fetched.ContentKind == core.ContentPDF,
	})
	if err != nil {
		compressed = windowed
	}

	tokens := c.counter.Count(ctx, compressed)
	record := sess.Sources.Register(r.URL, r.Title, fetched.ContentKind, compressed, tokens)
	record.TimesConsidered++
	record.TimesSelected++

	resultEmb, embErr := c.embedder.Embed(ctx, compressed)
	if embErr != nil {
		resultEmb = nil
	}

	if sess.Dimensions != nil && resultEmb != nil {
		sess.Dimensions.Update(resultEmb, 0.75)
	}

	out := r
	out.Snippet = compressed
	return out, resultEmb, nil
}

func (c *Controller) searchOptions(sess *Session, keywords []string) search.Options {
	timesSelected := map[string]int{}
	for _, src := range sess.Sources.Bibliography() {
		timesSelected[src.URL] = src.TimesSelected
	}
	return search.Options{
		MinLocalSources:           c.cfg.MinLocalSources,
		DomainPriorityMultiplier:  1.0,
		KeywordMultiplierPerMatch: c.cfg.KeywordMultiplierPerMatch,
		MaxKeywordMultiplier:      c.cfg.MaxKeywordMultiplier,
		Keywords:                  keywords,
		BaseResults:               10,
		SessionID:                 sess.State.FirstMessageID,
		TimesSelected:             timesSelected,
	}
}

func (c *Controller) gapVector(sess *Session) core.Embedding {
	if sess.Dimensions == nil {
		return nil
	}
	coverage := sess.Dimensions.Coverage()
	eigenvectors := sess.Dimensions.Eigenvectors()
	if len(coverage) == 0 || len(eigenvectors) == 0 {
		return nil
	}
	dim := len(eigenvectors[0])
	gap := make([]float64, dim)
	for i, e := range eigenvectors {
		if i >= len(coverage) {
			break
		}
		weight := 1.0 - coverage[i]
		for j := 0; j < dim && j < len(e); j++ {
			gap[j] += weight * float64(e[j])
		}
	}
	out := make(core.Embedding, dim)
	for i, v := range gap {
		out[i] = float32(v)
	}
	return out.Normalized()
}

func (c *Controller) embedAll(ctx context.Context, items []string) map[string]core.Embedding {
	out := make(map[string]core.Embedding, len(items))
	for _, item := range items {
		e, err := c.embedder.Embed(ctx, item)
		if err != nil || e == nil {
			continue
		}
		out[item] = e
	}
	return out
}

// embedTopics embeds each topic string, skipping any the embedder fails
// on, for feeding into semantic.ComputePDV.
func (c *Controller) embedTopics(ctx context.Context, items []string) []core.Embedding {
	if c.embedder == nil {
		return nil
	}
	out := make([]core.Embedding, 0, len(items))
	for _, t := range items {
		e, err := c.embedder.Embed(ctx, t)
		if err != nil || e == nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func recentWindow(results []core.SearchResult, n int) []core.SearchResult {
	if len(results) <= n {
		return results
	}
	return results[len(results)-n:]
}

func applyAnalysis(state *core.ResearchState, a core.CycleAnalysis) {
	state.Analyses = append(state.Analyses, a)
	for _, t := range a.Completed {
		state.Completed[t] = struct{}{}
		delete(state.Partial, t)
	}
	for _, t := range a.Partial {
		if _, done := state.Completed[t]; !done {
			state.Partial[t] = struct{}{}
		}
	}
	for _, t := range a.Irrelevant {
		state.Irrelevant[t] = struct{}{}
	}
	if len(a.New) > 0 {
		state.Outline.Nodes = append(state.Outline.Nodes, core.OutlineNode{
			Topic:     fmt.Sprintf("cycle %d follow-ups", a.CycleIndex),
			Subtopics: a.New,
		})
	}
	for _, item := range state.Outline.Flat() {
		state.TopicUsageCount[item]++
	}
}

func (c *Controller) generateOpeningQueries(ctx context.Context, question string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Research question: %s\n\nGenerate exactly 8 distinct, specific web search queries that would help answer this question. Reply with one query per line, no numbering.",
		question,
	)
	reply, err := c.llmClient.Complete(ctx, c.researchModel, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.3)
	if err != nil {
		return deterministicQueries(question, 8), nil
	}
	queries := parseLines(reply, 8)
	if len(queries) == 0 {
		return deterministicQueries(question, 8), nil
	}
	return queries, nil
}

func (c *Controller) generateQueriesForTopics(ranked []topics.Scored, perBatch int) []string {
	var out []string
	for _, t := range ranked {
		out = append(out, t.Topic)
		if len(out) >= perBatch {
			break
		}
	}
	return out
}

func (c *Controller) buildOutline(ctx context.Context, question string, results []core.SearchResult) (core.Outline, error) {
	var snippets strings.Builder
	for i, r := range results {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&snippets, "- %s: %s\n", r.Title, r.Snippet)
	}

	prompt := fmt.Sprintf(
		"Research question: %s\n\nInitial findings:\n%s\nPropose a research outline as a list of topics, each followed by up to 3 indented subtopics. Format each topic as \"TOPIC: name\" and each subtopic as \"  - name\".",
		question, snippets.String(),
	)
	reply, err := c.llmClient.Complete(ctx, c.researchModel, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.3)
	if err != nil {
		return deterministicOutline(question), nil
	}
	outline := parseOutline(reply)
	if len(outline.Nodes) == 0 {
		return deterministicOutline(question), nil
	}
	return outline, nil
}

func (c *Controller) classifyTopics(ctx context.Context, sess *Session, active []string, cycleResults []core.SearchResult, cycleIndex int) (core.CycleAnalysis, error) {
	analysis := core.CycleAnalysis{CycleIndex: cycleIndex}
	if len(active) == 0 {
		return analysis, nil
	}

	var findings strings.Builder
	for i, r := range cycleResults {
		if i >= 15 {
			break
		}
		fmt.Fprintf(&findings, "- %s: %s\n", r.Title, r.Snippet)
	}

	prompt := fmt.Sprintf(
		"Active research topics:\n%s\nThis cycle's findings:\n%s\nFor each topic, classify it as one of completed, partial, or irrelevant based on whether the findings address it. Reply with one line per topic: \"topic name: status\".",
		bulletList(active), findings.String(),
	)
	reply, err := c.llmClient.Complete(ctx, c.researchModel, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.1)
	if err != nil {
		for _, t := range active {
			analysis.Partial = append(analysis.Partial, t)
		}
		return analysis, nil
	}

	classified := parseClassification(reply, active)
	for topic, status := range classified {
		switch status {
		case core.TopicCompleted:
			analysis.Completed = append(analysis.Completed, topic)
		case core.TopicIrrelevant:
			analysis.Irrelevant = append(analysis.Irrelevant, topic)
		default:
			analysis.Partial = append(analysis.Partial, topic)
		}
	}
	return analysis, nil
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
