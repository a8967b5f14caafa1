package arm

import (
	"errors"
	"fmt"
	"sort"

	"rover/pkg/types"
)

var ErrUnknownPose = errors.New("unknown pose")

// Pose is a named vector of six joint angles.
type Pose struct {
	Name   string
	Angles types.Angles
}

// HomePose is where the arm starts and where ARM_HOME returns it.
var HomePose = Pose{Name: "home", Angles: types.Angles{90, 90, 90, 90, 40, 90}}

// DefaultPoses is the built-in pose table.
func DefaultPoses() []Pose {
	return []Pose{
		HomePose,
		{Name: "pick", Angles: types.Angles{90, 60, 60, 90, 40, GripperOpen}},
		{Name: "place", Angles: types.Angles{90, 90, 90, 90, 40, GripperOpen}},
		{Name: "rest", Angles: types.Angles{90, 150, 150, 90, 40, 90}},
	}
}

// DefaultPresets maps ARM_PRESET:<n> to pose names.
func DefaultPresets() map[int]string {
	return map[int]string{1: "pick", 2: "place", 3: "rest"}
}

// PoseTable is an immutable, case-insensitive pose lookup.
type PoseTable struct {
	poses   []Pose
	presets map[int]int
}

// NewPoseTable validates poses and builds the lookup. Names must be unique
// ignoring case and every angle must be within joint limits. A "home" pose
// is added when missing.
func NewPoseTable(poses []Pose, presets map[int]string) (*PoseTable, error) {
	t := &PoseTable{presets: make(map[int]int, len(presets))}
	for _, p := range poses {
		if p.Name == "" {
			return nil, errors.New("pose with empty name")
		}
		if _, err := t.Lookup([]byte(p.Name)); err == nil {
			return nil, fmt.Errorf("duplicate pose: %s", p.Name)
		}
		for j, a := range p.Angles {
			if a < types.MinAngle || a > types.MaxAngle {
				return nil, fmt.Errorf("pose %s joint %d angle %d out of range", p.Name, j+1, a)
			}
		}
		t.poses = append(t.poses, p)
	}
	if _, err := t.Lookup([]byte(HomePose.Name)); err != nil {
		t.poses = append(t.poses, HomePose)
	}
	for n, name := range presets {
		idx := t.index([]byte(name))
		if idx < 0 {
			return nil, fmt.Errorf("preset %d refers to unknown pose %s", n, name)
		}
		t.presets[n] = idx
	}
	return t, nil
}

// Lookup finds a pose by name, ignoring case.
func (t *PoseTable) Lookup(name []byte) (Pose, error) {
	if idx := t.index(name); idx >= 0 {
		return t.poses[idx], nil
	}
	return Pose{}, ErrUnknownPose
}

// Preset finds a pose by its preset number.
func (t *PoseTable) Preset(n int) (Pose, error) {
	if idx, ok := t.presets[n]; ok {
		return t.poses[idx], nil
	}
	return Pose{}, ErrUnknownPose
}

// Names lists the pose names in sorted order.
func (t *PoseTable) Names() []string {
	names := make([]string, 0, len(t.poses))
	for _, p := range t.poses {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func (t *PoseTable) index(name []byte) int {
	for i := range t.poses {
		if equalFold(t.poses[i].Name, name) {
			return i
		}
	}
	return -1
}

// equalFold is an ASCII case-insensitive comparison that does not allocate.
func equalFold(s string, b []byte) bool {
	if len(s) != len(b) {
		return false
	}
	for i := 0; i < len(s); i++ {
		x, y := s[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if 'A' <= y && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}

// MergePoses overlays configured poses on base. A configured pose replaces a
// base pose with the same name, ignoring case.
func MergePoses(base []Pose, extra map[string][]int) ([]Pose, error) {
	out := append([]Pose(nil), base...)
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		angles := extra[name]
		if len(angles) != types.JointCount {
			return nil, fmt.Errorf("pose %s needs %d angles, got %d", name, types.JointCount, len(angles))
		}
		pose := Pose{Name: name}
		copy(pose.Angles[:], angles)

		replaced := false
		for i := range out {
			if equalFold(out[i].Name, []byte(name)) {
				out[i] = pose
				replaced = true
			}
		}
		if !replaced {
			out = append(out, pose)
		}
	}
	return out, nil
}
