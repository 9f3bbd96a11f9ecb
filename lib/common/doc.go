// Package common provides the logging setup shared by all packages of scdb.
//
// Loggers implement dragonboat's logger.ILogger interface, the factory is installed
// when this package is initialized. Every named logger writes structured records
// through one zerolog logger, which can be replaced with SetOutput (the CLI uses a
// zerolog.ConsoleWriter).
//
// Usage inside a package:
//
//	var log = common.GetLogger(common.LoggerMaple)
//
//	log.Infof("opened store at %s", path)
package common
