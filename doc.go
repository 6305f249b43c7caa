// Package bot compiles procedures into tick-stepped missions.
//
// A procedure is written as ordinary sequential code: lets, blocks,
// labeled suspending loops, break, continue, return, and calls to
// other procedures as sub-missions.  Package core partitions each
// procedure into states at its tick boundaries.  Package machine runs
// the resulting programs one state transition per tick, and package
// gen writes them out as Go source that does the same thing.
//
// Package mission has the runtime contract both share, crew runs
// many missions against a changing world, and cmd/mbot and cmd/mdb
// are the command-line tools.
package bot
