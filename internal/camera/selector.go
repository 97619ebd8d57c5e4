package camera

// CameraSelector はレンズの向きでカメラを選ぶ
type CameraSelector struct {
	Facing LensFacing
}

var (
	// DefaultBackCamera は背面カメラを選ぶセレクター
	DefaultBackCamera = CameraSelector{Facing: LensFacingBack}
	// DefaultFrontCamera は前面カメラを選ぶセレクター
	DefaultFrontCamera = CameraSelector{Facing: LensFacingFront}
)

// filter は候補の中からセレクターに一致するカメラを順序を保って返す
func (s CameraSelector) filter(cameras []Camera) []Camera {
	var matched []Camera
	for _, cam := range cameras {
		if s.Facing == "" || cam.Facing == s.Facing {
			matched = append(matched, cam)
		}
	}
	return matched
}
