package core

import (
	"fmt"
	"math/rand"
)

var (
	nicknameAdjectives = []string{
		"night-sky", "dawn", "dusk", "moonlit", "starlit",
		"cosmic", "galactic", "stellar", "lunar", "solar",
	}
	nicknameNouns = []string{
		"traveler", "wanderer", "explorer", "dreamer", "observer",
		"poet", "philosopher", "scientist", "artist", "musician",
	}
)

// GenerateNickname makes a display name for clients that register
// without one. Names are not unique by construction; user ids are the
// identity, nicknames are cosmetic.
func GenerateNickname() string {
	adj := nicknameAdjectives[rand.Intn(len(nicknameAdjectives))]
	noun := nicknameNouns[rand.Intn(len(nicknameNouns))]
	return fmt.Sprintf("%s-%s-%03d", adj, noun, rand.Intn(900)+100)
}
