package bus

import "fmt"

// TopicNaming provides canonical topic names following the platform
// convention. Pattern: <domain>.<category>.<venue>.
type TopicNaming struct{}

func (TopicNaming) Launches(venue string) string { return fmt.Sprintf("chain.launches.%s", venue) }
func (TopicNaming) Trades(venue string) string   { return fmt.Sprintf("chain.trades.%s", venue) }
func (TopicNaming) Decisions() string            { return "score.decisions" }
func (TopicNaming) ExitAlerts() string           { return "guard.alerts" }

// Topics is the global topic naming instance.
var Topics = TopicNaming{}

// VenuePumpFun is the only venue vigil scores today.
const VenuePumpFun = "pumpfun"

// TopicRetention maps topics to their retention in hours. Trade volume on
// fresh launches is enormous and worthless within hours; decisions and
// alerts are kept long enough to audit the tuner against outcomes.
var TopicRetention = map[string]int{
	"chain.launches.*": 168,
	"chain.trades.*":   72,
	"score.decisions":  720,
	"guard.alerts":     720,
}

// AllTopicPrefixes returns all topic prefixes for provisioning.
func AllTopicPrefixes() []string {
	return []string{
		"chain.launches",
		"chain.trades",
		"score.decisions",
		"guard.alerts",
	}
}
