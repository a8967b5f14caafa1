package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyleLineKeepsText(t *testing.T) {
	for _, line := range []string{"OK_FORWARD", "ERR_BUSY", "Uptime:1200|Ready:YES", "EMERGENCY_STOP:OPERATOR"} {
		assert.Contains(t, styleLine(line), line)
	}
}

func TestLineStyleByKind(t *testing.T) {
	assert.Equal(t, okStyle, lineStyle("OK_FORWARD"))
	assert.Equal(t, okStyle, lineStyle("PONG"))
	assert.Equal(t, errStyle, lineStyle("ERR_BLOCKED_FORWARD"))
	assert.Equal(t, dimStyle, lineStyle("Uptime:1200|Ready:YES|Emergency:OK|Memory:512|Loop:50.0Hz|Joints:90,90,90,90,40,90"))
	assert.Equal(t, dimStyle, lineStyle("SENSOR:200.0:42.3:CLEAR:OBSTACLE:ON"))
	assert.Equal(t, dimStyle, lineStyle("HEARTBEAT"))
	assert.Equal(t, eventStyle, lineStyle("COLLISION_WARNING:FRONT:8.0"))
}

func TestDemoSteps(t *testing.T) {
	c := DemoCommand{Speed: 40}
	steps := c.steps()
	assert.Equal(t, "F:40", steps[0])
	assert.Contains(t, steps, "T:40,-40")
	assert.Equal(t, "STATUS", steps[len(steps)-1])
}
