// Package buildlog provides the build-log sink used by the synchronization engine.
//
// Every command line, every line of command output and every failure the engine
// reports goes through a Logger. Splog writes to the console and, optionally, to a
// rotating log file; Recorder keeps entries in memory for tests.
package buildlog
