package ir

// Extensions carries dialect-specific request fields that have no neutral
// equivalent. Per the REDESIGN FLAGS note in spec.md §9, this is a tagged
// union over the two known dialect extension shapes rather than a
// free-form map, so round-tripping a field never depends on dynamic
// typing: a converter reads and writes only the branch matching its own
// dialect, and the other branch simply carries across untouched.
type Extensions struct {
	OAI *OAIExtensions
	OLL *OLLExtensions
}

// OAIExtensions holds OAI-dialect request fields with no OLL equivalent.
type OAIExtensions struct {
	Seed               *int64
	ResponseFormatType string // "" or "json_object"
}

// OLLExtensions holds OLL-dialect request fields with no OAI equivalent.
type OLLExtensions struct {
	TopK              *int64
	RepetitionPenalty *float64
	Seed              *int64
	Raw               bool
}

// EnsureOAI returns e.OAI, allocating it if nil.
func (e *Extensions) EnsureOAI() *OAIExtensions {
	if e.OAI == nil {
		e.OAI = &OAIExtensions{}
	}
	return e.OAI
}

// EnsureOLL returns e.OLL, allocating it if nil.
func (e *Extensions) EnsureOLL() *OLLExtensions {
	if e.OLL == nil {
		e.OLL = &OLLExtensions{}
	}
	return e.OLL
}
