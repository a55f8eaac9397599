package reading

import (
	"fmt"
	"time"
)

// In-character notices. The end user never sees a technical error; every
// failure path maps onto one of these.
const (
	readingStart    = "🔮 I am laying out the cards… The ancient magic of the tarot will reveal its secrets to us…"
	secondCardIntro = "✨ The mist of time is clearing… I see the next card…"
	thirdCardIntro  = "🌟 The last card is ready to give up its secret…"

	interpretationStart = "🌟 I am slipping into a mystical trance… The cards are whispering, and I am preparing a deep interpretation for you… ✨"
	cardsSilent         = "🔮 The cards keep their silence…"
	powersUnavailable   = "🌌 The mystical powers are temporarily out of reach… 🌌"
	oracleMeditation    = "🌌 The oracle has sunk into deep meditation… 🌌"

	closingMessage = "🌙 The cards need their rest now… ✨ Come back later for a new reading 🔮"
	errorMessage   = "🌑 The powers of the tarot are temporarily unavailable… Try again a little later 🌑"
)

// roleCaptions label each card by its position in the spread, in draw order.
var roleCaptions = [3]string{
	"🕰 Past: %s",
	"⚡️ Present: %s",
	"🔮 Future: %s",
}

// roleIntros precede the second and third card; the first has none.
var roleIntros = [3]string{"", secondCardIntro, thirdCardIntro}

// cooldownNotice phrases the remaining wait, bucketed the way a fortune
// teller would say it: whole hours past two hours, "an hour" between one and
// two, minutes below that.
func cooldownNotice(remaining time.Duration) string {
	const prefix = "🕐 There is not enough magical energy for another reading yet… "
	minutes := int(remaining / time.Minute)
	switch {
	case minutes >= 120:
		return fmt.Sprintf(prefix+"Return in %d hours ✨", minutes/60)
	case minutes >= 60:
		return prefix + "Return in an hour ✨"
	default:
		return fmt.Sprintf(prefix+"Return in %d minutes ✨", minutes)
	}
}
