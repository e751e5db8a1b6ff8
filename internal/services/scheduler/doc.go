// Package scheduler runs the periodic jobs of the bot: the reminder scan on
// a fixed interval and the daily broadcast drains at configured wall-clock
// times. Each definition carries a skip-if-running guard so a slow pass never
// overlaps itself.
package scheduler
