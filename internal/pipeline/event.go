package pipeline

// Stage identifies a step of the generation pipeline.
type Stage string

const (
	StageCheckingCache Stage = "checking_cache"
	StageValidating    Stage = "validating"
	StageFetching      Stage = "fetching"
	StageDescribing    Stage = "describing"
	StageGenerating    Stage = "generating"
	StagePartial       Stage = "partial_artifact"
	StageCompleted     Stage = "completed"
	StageError         Stage = "error"
)

// Event is one pipeline transition pushed to the caller. For a single
// request, events follow the fixed order checking_cache, validating,
// fetching, describing, generating, any number of partial_artifact, then
// completed; error may terminate the sequence from any point.
//
// Consumers of partial_artifact events replace the previous partial rather
// than appending: at most one partial is current at any time.
type Event struct {
	Stage        Stage  `json:"stage"`
	Message      string `json:"message"`
	Artifact     []byte `json:"artifact,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	PartialIndex int    `json:"partial_index,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Err          string `json:"error,omitempty"`
	// Code classifies error events: "rejected", "collaborator_failed", or
	// "providers_failed". Empty on non-error events.
	Code string `json:"code,omitempty"`
}
