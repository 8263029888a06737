package hapi

import (
	"errors"
	"fmt"
)

// Result is the status code returned by every engine call.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
	ResultAlreadyInitialized
	ResultNotInitialized
	ResultCantLoadFile
	ResultParmSetFailed
	ResultInvalidArgument
	ResultCantLoadGeo
	ResultCantGeneratePreset
	ResultCantLoadPreset
	ResultAssetDefAlreadyLoaded
)

// Error implements error so non-success codes can travel as Go errors.
func (r Result) Error() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultAlreadyInitialized:
		return "already initialized"
	case ResultNotInitialized:
		return "not initialized"
	case ResultCantLoadFile:
		return "cannot load file"
	case ResultParmSetFailed:
		return "parm set failed"
	case ResultInvalidArgument:
		return "invalid argument"
	case ResultCantLoadGeo:
		return "cannot load geo"
	case ResultCantGeneratePreset:
		return "cannot generate preset"
	case ResultCantLoadPreset:
		return "cannot load preset"
	case ResultAssetDefAlreadyLoaded:
		return "asset definition already loaded"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ResultOf extracts the engine code carried by err.
// Errors that do not carry a Result map to ResultFailure.
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return ResultFailure
}

// StatusType selects which status channel is queried.
type StatusType int

const (
	StatusCallResult StatusType = iota
	StatusCookResult
	StatusCookState
)

// Verbosity selects how much detail a status string carries.
type Verbosity int

const (
	VerbosityErrors Verbosity = iota
	VerbosityWarnings
	VerbosityMessages
)

// State is the cook state reported on the StatusCookState channel.
type State int

const (
	StateReady State = iota
	StateReadyWithFatalErrors
	StateReadyWithCookErrors
	StateStartingCook
	StateCooking
	StateStartingLoad
	StateLoading

	// StateMaxReady is the highest value that means the cook has finished.
	StateMaxReady = StateReadyWithCookErrors
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateReadyWithFatalErrors:
		return "ready with fatal errors"
	case StateReadyWithCookErrors:
		return "ready with cook errors"
	case StateStartingCook:
		return "starting cook"
	case StateCooking:
		return "cooking"
	case StateStartingLoad:
		return "starting load"
	case StateLoading:
		return "loading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is an opened procedural engine session. Every call returns a
// non-nil error (normally a Result) on failure; the detailed message is then
// available from StatusString(StatusCallResult, ...).
//
// Results reflect the state as of the last completed cook.
type Session interface {
	LoadAssetLibrary(path string) (LibraryID, error)
	AvailableAssets(lib LibraryID) ([]string, error)
	InstantiateAsset(name string, cookOnLoad bool) (AssetID, error)
	DestroyAsset(id AssetID) error
	CookAsset(id AssetID) error

	Status(t StatusType) (State, error)
	StatusString(t StatusType, v Verbosity) string

	AssetInfo(id AssetID) (AssetInfo, error)
	ObjectInfos(id AssetID, start, length int) ([]ObjectInfo, error)
	// ComposeObjectTransforms returns world transforms for a range of objects
	// and clears every object's transform-changed flag.
	ComposeObjectTransforms(id AssetID, start, length int) ([]Transform, error)
	GeoInfo(id AssetID, object, geo int) (GeoInfo, error)
	PartInfo(key PartKey) (PartInfo, error)

	// AttributeNames fails when count is zero.
	AttributeNames(key PartKey, owner AttributeOwner, count int) ([]string, error)
	AttributeInfo(key PartKey, owner AttributeOwner, name string) (AttributeInfo, error)
	AttributeFloatData(key PartKey, name string, info AttributeInfo, start, length int) ([]float32, error)
	AttributeIntData(key PartKey, name string, info AttributeInfo, start, length int) ([]int32, error)
	AttributeStringData(key PartKey, name string, info AttributeInfo, start, length int) ([]string, error)

	FaceCounts(key PartKey, start, length int) ([]int32, error)
	VertexList(key PartKey, start, length int) ([]int32, error)

	CurveInfo(key PartKey) (CurveInfo, error)
	CurveCounts(key PartKey, start, length int) ([]int32, error)
	CurveOrders(key PartKey, start, length int) ([]int32, error)

	MaterialNodeIDsOnFaces(key PartKey, start, length int) (ids []NodeID, allSame bool, err error)
	MaterialInfo(id NodeID) (MaterialInfo, error)
	NodeParms(id NodeID) ([]ParmInfo, error)
	ParmFloatValues(id NodeID, start, length int) ([]float32, error)
	ParmIntValues(id NodeID, start, length int) ([]int32, error)
	ParmStringValues(id NodeID, start, length int) ([]string, error)
	SetParmFloatValues(id NodeID, values []float32, start int) error
	SetParmIntValues(id NodeID, values []int32, start int) error
	SetParmStringValue(id NodeID, value string, parm ParmID, index int) error

	RenderTextureToImage(material NodeID, parm ParmID) error
	ImageInfo(material NodeID) (ImageInfo, error)
	// ExtractImageToMemory encodes the last rendered image in the given file
	// format ("" keeps the engine's native format) and returns the bytes.
	ExtractImageToMemory(material NodeID, format, planes string) ([]byte, error)
}
