// Package props handles invoker properties: the name/value pairs a user
// supplies on the command line (-D name=value) or in the settings file, and
// the allow-list forwarding that copies a selected subset of them into a
// launched application's own configuration.
package props
