// Package mongo provides a MongoDB-backed implementation of the session
// thread store. Build the low-level client via
// features/session/mongo/clients/mongo and pass it to NewStore so services
// can persist conversation threads outside the process.
package mongo
