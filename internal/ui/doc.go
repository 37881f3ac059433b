// Package ui implements tether's terminal interface with Bubble Tea.
//
// # Overview
//
// The UI is a presentation layer over a state.Store that something else keeps
// in sync. It never applies relay updates itself: the composition root feeds
// the program ChangesMsg values after every Store mutation and StatusMsg
// values whenever the sync loop changes phase. The only Store calls the UI
// makes are reads plus SetActive and SetMuted, which change presentation
// counters and nothing the relay owns.
//
// # Layout
//
//	┌ header: logo, sync phase, active window, nick, unread, offline ┐
//	│ window list │ message pane (viewport)                          │
//	├ status line: hints or the last notice                          ┤
//	└ input box (textinput)                                          ┘
//
// The window list is hidden on terminals narrower than LayoutCompactWidth.
// The main pane can also show the failed-action list (f) or the client's
// own log file (L), parsed by package logtail.
//
// # Modes
//
// Keys are vi-like. In normal mode single letters navigate windows, retry
// (r) or reload (R) the session, mute a window (m) and switch panes. Press i
// or Enter to type and / to start a command; Esc returns to normal mode.
//
// # Input grammar
//
// Plain text is sent as PRIVMSG to the active window; a leading "//" sends
// the text with one leading slash. Commands:
//
//	/me <action>          CTCP ACTION to the active window
//	/msg <target> <text>  open the target window if needed, then send
//	/query <nick>         open or switch to a private window
//	/join <chan> [key]    /part [chan] [reason]   /nick <name>
//	/topic [text]         show or set the active channel's topic
//	/raw <line>           send an IRC line verbatim
//	/close                close the active window
//	/markread             mark everything in the active window read
//	/clear                drop the active window's lines
//
// Every command becomes one do-actions request. Its effect comes back
// through the update stream; a rejected request lands in the failed list.
//
// # Themes and preferences
//
// Themes (Dracula, Nightfox, Slate) cycle with T. Compact mode (C) shortens
// timestamps; the lower per-window line cap it implies takes effect on the
// next start. Both are saved to the prefs file immediately.
package ui
