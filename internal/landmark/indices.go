package landmark

// Named indices into the MediaPipe face mesh topology. Only the points
// the engine anchors or measures against are named; the rest of the
// 468-point mesh is addressed positionally.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	IdxNoseTip       = 1
	IdxNoseBottom    = 2
	IdxNoseBridge    = 168
	IdxForeheadTop   = 10
	IdxChin          = 152
	IdxLeftEyeOuter  = 33
	IdxLeftEyeInner  = 133
	IdxRightEyeInner = 362
	IdxRightEyeOuter = 263
	IdxLeftEar       = 234
	IdxRightEar      = 454
	IdxMouthLeft     = 61
	IdxMouthRight    = 291
	IdxUpperLip      = 13
	IdxLowerLip      = 14
)

// boxIndices is the curated subset used for bounding-box estimation:
// eye corners and lids, nose, mouth, and the lower face outline
// (jawline, ears, chin). Points along the top of the face oval
// (forehead and hairline, e.g. 10/338/297/332/109/67) are deliberately
// excluded because hair and headwear inflate the box vertically.
var boxIndices = []int{
	// Left eye
	33, 133, 144, 145, 153, 158, 159, 160,
	// Right eye
	263, 362, 373, 374, 380, 385, 386, 387,
	// Nose
	1, 2, 4, 5, 98, 327, 168,
	// Mouth
	13, 14, 61, 78, 291, 308,
	// Lower face outline: left jaw, chin, right jaw, ears
	132, 136, 148, 149, 150, 152, 172, 176, 234,
	288, 323, 361, 365, 377, 378, 379, 397, 400, 454, 58, 93,
}

// stableIndices is the small set of rigid facial points used for the
// spatial-consistency term of the confidence score. These points move
// together with the skull (eye corners, nose tip, chin), so spread
// beyond normal face proportions indicates detector jitter.
var stableIndices = []int{
	IdxLeftEyeOuter, IdxLeftEyeInner,
	IdxRightEyeInner, IdxRightEyeOuter,
	IdxNoseTip, IdxNoseBridge, IdxChin,
}
