package constants

// Stage names a step of the extraction pipeline. Used in logs and outcomes.
type Stage string

const (
	StageRasterize Stage = "rasterize"
	StageExtract   Stage = "extract"
	StageVerify    Stage = "verify"
	StageEnrich    Stage = "enrich"
)

// OutcomeStatus is the result of one unit of work inside a stage.
type OutcomeStatus string

const (
	OutcomeOK       OutcomeStatus = "ok"       // the AI call succeeded and its output was used
	OutcomeFailed   OutcomeStatus = "failed"   // no output (extraction yields zero records)
	OutcomeFallback OutcomeStatus = "fallback" // the input record was passed through
	OutcomeSkipped  OutcomeStatus = "skipped"  // stage disabled for this item
)
