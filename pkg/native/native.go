// Package native declares the capability interfaces of the video-authoring
// runtime under test. Drivers implement them; the stubs only ever talk to
// these interfaces.
//
// Optional capabilities of a Source (captions, highlights, exclusions,
// target rectangles, clipping) and of the Core (title and credits, logo
// overlay, timeline dumps) are separate views discovered with a type
// assertion, e.g.
//
//	if h, ok := src.(native.Highlighter); ok { ... }
package native

import "io"

// SourceType is the kind of media a source holds.
type SourceType int

const (
	SourceUnknown SourceType = iota
	SourceImage
	SourceMusic
	SourceVideo
	SourceText
	SourceOperator
)

var sourceTypeNames = map[SourceType]string{
	SourceUnknown:  "unknown",
	SourceImage:    "image",
	SourceMusic:    "music",
	SourceVideo:    "video",
	SourceText:     "text",
	SourceOperator: "operator",
}

func (t SourceType) String() string {
	if name, ok := sourceTypeNames[t]; ok {
		return name
	}

	return "unknown"
}

// InitFlags are passed to Core.Init.
type InitFlags int

const InitDefault InitFlags = 0

// LoadFlags control how a source is loaded and added.
type LoadFlags int

const (
	LoadNull          LoadFlags = 0
	LoadVerifySupport LoadFlags = 1 << iota
	LoadContext
	LoadDisableLoRezProxy
)

// MakeFlags control timeline generation.
type MakeFlags int

const (
	MakeDefault  MakeFlags = 0
	MakeThreaded MakeFlags = 1 << iota
	MakeForSaving
)

// TimelineType selects which timeline is rendered or measured.
type TimelineType int

const (
	TimelineMuvee TimelineType = iota
	TimelineFinalPreview
)

// AspectRatio is the output aspect ratio.
type AspectRatio int

const (
	AspectRatio4x3 AspectRatio = iota + 1
	AspectRatio16x9
	AspectRatio1x1
	AspectRatio9x16
)

// Valid reports whether r is a known aspect ratio.
func (r AspectRatio) Valid() bool {
	return r >= AspectRatio4x3 && r <= AspectRatio9x16
}

// Core is the root capability of the runtime.
//
// Start-style methods return a status where a negative value means failure;
// boolean methods return false on failure. Either kind may also return an
// error for interop-level failures. LastError describes the most recent
// failure.
type Core interface {
	io.Closer

	Init(flags InitFlags) error
	Release() error

	CreateSource(t SourceType) (Source, error)
	AddSource(t SourceType, src Source, flags LoadFlags) (bool, error)

	StartAnalysis() (int, error)
	AnalysisProgress() (float64, error)
	StopAnalysis() error

	MakeTimeline(mode MakeFlags, duration float64) (int, error)
	MakeProgress() (float64, error)
	CancelMake() error

	StartRenderToFile(path string, win Window, width, height int) (int, error)
	RenderToFileProgress() (float64, error)
	StopRenderToFile() error

	SetupRenderToWindow(tl TimelineType, win Window, width, height int) (int, error)
	StartRenderToWindow(tl TimelineType) error
	RenderToWindowProgress(tl TimelineType) (float64, error)
	StopRenderToWindow(tl TimelineType) error
	ShutdownRenderToWindow(tl TimelineType) error

	SetActiveStyle(name string) error
	ActiveStyle() (string, error)
	Styles() ([]string, error)

	SetAspectRatio(r AspectRatio) error
	SetMusicLevel(level float64) error
	SetSyncSoundLevel(level float64) error
	SetDescriptorFolder(path string) error

	TimelineDuration(tl TimelineType) (float64, error)
	UserDataFolder() string
	CommonDataFolder() string
	RuntimeBuild() int
	LastError() string
}

// Source is a media item that can be added to the production.
type Source interface {
	Type() SourceType
	// LoadFile loads a file-backed source (image, music, video, operator).
	LoadFile(path string, flags LoadFlags) (bool, error)
	// Load loads a non-file source such as text.
	Load(content string, flags LoadFlags) error
	SetMinDuration(seconds float64) error
}

// Clipper restricts a source to a time range.
type Clipper interface {
	SetClip(start, stop float64) error
}

// Span is a time range in seconds.
type Span struct {
	Start float64
	Stop  float64
}

// Highlighter manages highlight ("magic moment") ranges on a source.
type Highlighter interface {
	SetHighlight(start, stop float64) error
	HighlightCount() int
	Highlight(i int) (Span, error)
	ClearHighlights() error
	SaveHighlights(path string) error
	LoadHighlights(path string) error
}

// Excluder manages excluded ranges on a source.
type Excluder interface {
	SetExclusion(start, stop float64) error
	Exclusions() ([]Span, error)
}

// TargetRects manages magic-spot rectangles on an image source.
type TargetRects interface {
	AddTargetRect(x1, x2, y1, y2 float64) error
	TargetRectCount() int
}

// CaptionHighlighter attaches a caption to a highlighted range.
type CaptionHighlighter interface {
	SetCaptionHighlight(text string, start, stop float64, format *TextFormat) error
}

// DescriptorVerifier checks that user descriptors survive a round trip.
type DescriptorVerifier interface {
	VerifyUserDescriptors() (bool, error)
}

// Previewable renders a single source into a window.
type Previewable interface {
	SetupRender(win Window, width, height int) (int, error)
	StartRender() error
	RenderProgress() (float64, error)
	StopRender() error
	ShutdownRender() error
}

// Captioned exposes the caption collection of a source.
type Captioned interface {
	Captions() CaptionCollection
}

// TextFormat is the display format of a caption.
type TextFormat struct {
	LogFont   string  `xml:"font,attr"`
	Color     int64   `xml:"color,attr"`
	X         float64 `xml:"x,attr"`
	Y         float64 `xml:"y,attr"`
	Width     float64 `xml:"width,attr"`
	Height    float64 `xml:"height,attr"`
	HorAlign  int     `xml:"halign,attr"`
	VertAlign int     `xml:"valign,attr"`
}

// Caption is a single caption entry.
type Caption struct {
	Text   string     `xml:"text"`
	Start  float64    `xml:"start,attr"`
	Stop   float64    `xml:"stop,attr"`
	Format TextFormat `xml:"format"`
}

// CaptionCollection is the ordered captions of a source.
type CaptionCollection interface {
	Add(text string) (int, error)
	Len() int
	At(i int) (Caption, error)
	Remove(i int) error
	Clear() error
	ToXML() (string, error)
	FromXML(data string) error
}

// VideoInfo describes the decoded stream of a video source.
type VideoInfo struct {
	Width        int
	Height       int
	AspectRatio  AspectRatio
	AspectRatioX int
	AspectRatioY int
}

// VideoInspector reports stream information of a loaded video source.
type VideoInspector interface {
	VideoInfo() (VideoInfo, error)
}

// Operator sets the parameters of an operator source, e.g. ANCHOR_MEDIA.
type Operator interface {
	SetParam(name string, value any) error
}

// SourceLister enumerates the ids of the sources added to the production.
type SourceLister interface {
	SourceIDs(t SourceType) ([]string, error)
}

// Identified is a source with a runtime-assigned unique id.
type Identified interface {
	UniqueID() string
}

// TitleCredits sets the opening title and the closing credits.
type TitleCredits interface {
	SetTitleString(title string) error
	SetCreditsString(credits string) error
}

// PrimaryCaptioner holds the production-wide caption used for copyright
// notices.
type PrimaryCaptioner interface {
	PrimaryCaption() (Caption, error)
	SetPrimaryCaption(c Caption) error
}

// Rect is a normalized rectangle.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// Overlay places a logo image over the whole production.
type Overlay interface {
	SetOverlaySourceFile(path string) error
	SetOverlayPlacement(r Rect) error
	SetOverlayOpacity(opacity float64) error
	SetOverlayCropRect(r Rect) error
}

// TimelineDumper makes the next render also write its timeline to a
// binary file.
type TimelineDumper interface {
	ConfigRenderTL2File(path string) error
}

// Window is a native window that render-to-window operations draw into.
type Window interface {
	Handle() uintptr
	// Run services the window's event loop and blocks until the window
	// is closed.
	Run() error
	// Close closes the window. Closing twice is a no-op.
	Close()
	// OnClose registers a callback invoked when the window closes.
	OnClose(fn func())
}

// Display creates windows.
type Display interface {
	NewWindow(title string, width, height int) (Window, error)
}
