/*
Package session implements session management and checkpoint orchestration.

It serializes checkpoint reads and writes per session ID, optionally across
replicas through a distributed locker, and keeps the cancel functions of the
workflow instances running in this process.
*/
package session
