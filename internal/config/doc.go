// Package config loads reposync settings and synchronization requests.
//
// It handles:
//   - Engine settings read once from the environment (git executable,
//     ssh command, command timeout, changeset limit, log file)
//   - YAML request files describing one repository and its credentials
package config
