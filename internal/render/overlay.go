package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/tracker"
)

var (
	colorOK      = color.RGBA{0, 220, 0, 0}
	colorBad     = color.RGBA{0, 0, 230, 0}
	colorBone    = color.RGBA{230, 230, 230, 0}
	colorText    = color.RGBA{255, 255, 255, 0}
	colorUnknown = color.RGBA{0, 200, 255, 0}
)

// bones are the landmark pairs joined by skeleton lines.
var bones = [][2]int{
	{pose.LeftShoulder, pose.RightShoulder},
	{pose.LeftHip, pose.RightHip},
	{pose.LeftShoulder, pose.LeftHip},
	{pose.RightShoulder, pose.RightHip},
	{pose.LeftShoulder, pose.LeftElbow},
	{pose.LeftElbow, pose.LeftWrist},
	{pose.RightShoulder, pose.RightElbow},
	{pose.RightElbow, pose.RightWrist},
}

// Overlay draws the skeleton, joint angles and rep counter onto the frame and
// then passes it on to Next.
type Overlay struct {
	Next Sink

	// LineThickness defaults to 2.
	LineThickness int
}

// Render annotates frame in place when present and forwards the update.
func (o *Overlay) Render(u tracker.Update, frame *gocv.Mat) {
	if frame != nil && !frame.Empty() {
		Annotate(frame, u, o.thickness())
	}
	if o.Next != nil {
		o.Next.Render(u, frame)
	}
}

func (o *Overlay) thickness() int {
	if o.LineThickness <= 0 {
		return 2
	}
	return o.LineThickness
}

// Annotate draws u onto img.
func Annotate(img *gocv.Mat, u tracker.Update, thickness int) {
	w, h := img.Cols(), img.Rows()

	if u.Pose != nil {
		pt := func(i int) (image.Point, bool) {
			lm := u.Pose.At(i)
			if lm == nil {
				return image.Point{}, false
			}
			return image.Pt(int(lm.X*float64(w)), int(lm.Y*float64(h))), true
		}

		for _, b := range bones {
			p1, ok1 := pt(b[0])
			p2, ok2 := pt(b[1])
			if ok1 && ok2 {
				gocv.Line(img, p1, p2, colorBone, thickness)
			}
		}

		joint := func(i int, visible, correct bool, angle float64) {
			p, ok := pt(i)
			if !ok || !visible {
				return
			}
			c := colorOK
			if !correct {
				c = colorBad
			}
			gocv.Circle(img, p, 6, c, -1)
			gocv.PutText(img, fmt.Sprintf("%.0f", angle), p.Add(image.Pt(10, -10)),
				gocv.FontHersheySimplex, 0.6, c, 2)
		}
		joint(pose.LeftShoulder, u.LeftVisible, u.LeftCorrect, u.LeftAngle)
		joint(pose.RightShoulder, u.RightVisible, u.RightCorrect, u.RightAngle)

		for _, i := range []int{pose.LeftElbow, pose.RightElbow, pose.LeftWrist, pose.RightWrist, pose.LeftHip, pose.RightHip} {
			if p, ok := pt(i); ok {
				gocv.Circle(img, p, 4, colorBone, -1)
			}
		}
	}

	phaseColor := colorText
	if !u.Tracking {
		phaseColor = colorUnknown
	}
	gocv.PutText(img, fmt.Sprintf("Reps: %d", u.Reps), image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.8, colorText, 2)
	gocv.PutText(img, u.CurrentPhase, image.Pt(10, 60),
		gocv.FontHersheySimplex, 0.6, phaseColor, 2)
}
