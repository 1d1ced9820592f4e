// Package sqldb opens the relational store backing the task table (an
// embedded SQLite file by default, MySQL optionally) and creates the table on
// startup.
package sqldb
