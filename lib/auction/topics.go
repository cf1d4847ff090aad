package auction

import "path"

// Topic is the base pubsub topic for auction announcements.
const Topic string = "/subastra/auction/0.0.1"

// EventsTopic is used by the daemon to announce auction lifecycle events
// (created, bid placed, closed, destroyed, claimed). Informational only.
var EventsTopic string = path.Join(Topic, "events")
