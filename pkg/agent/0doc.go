// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent fans a subscriber's measurements out to modules, e.g., browser clients or an archive.
//
// The main interface is the ApplicationAgent, which only requires two channels for incoming and outgoing Messages.
// Additionally, it requests a list of signals. Due to this flexibility, an ApplicationAgent can be implemented in
// various forms, e.g., as an external interface for third-party programs or as an internal module. Both possibilities
// are already included in this package, for example the WebSocketAgent or the ArchiveAgent. The Bridge supervises
// all ApplicationAgents and serves them over HTTP.
package agent
