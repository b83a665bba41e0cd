// Package launcher is the host-page side of the widget.
//
// # Mounting
//
// Mount reads the host page, finds the first script element carrying a
// data-widget-id attribute and fetches that widget's config. A page without
// the directive, or a config that cannot be loaded, aborts the mount: nothing
// is rendered and no frame is created.
//
//	<script src="https://cdn.example.com/widget.js" data-widget-id="w1"></script>
//
// # Open and close
//
// The launcher starts closed. Toggle flips the state without any network
// call. The frame is constructed lazily in the background after the first
// open and kept for the life of the page; if construction fails the launcher
// closes again and reports through Options.OnFrameError. Every open schedules a FOCUS command into the frame after
// FocusDelay so the frame can focus its primary input.
//
// The launcher knows only the widget id and the port. All conversation state
// lives in the frame.
package launcher
