// Package ioreactor: an epoll-backed scheduler.
//
// Manager embeds *scheduler.Scheduler and implements scheduler.Hooks so
// that a worker's idle pass, instead of just waiting on a wake channel,
// blocks in epoll_wait for up to its maximum timeout (3 seconds unless
// changed with SetMaxTimeout; less, if a timer is due sooner), then:
//
//  1. schedules every timer callback whose deadline has passed;
//  2. drains the self-pipe if it was the wake source (edge-triggered,
//     read until EAGAIN);
//  3. for every other ready fd, schedules the armed continuation
//     (fiber resume or bare callback) for whichever of READ/WRITE
//     became ready, synthesizing both against the armed mask on
//     EPOLLERR/EPOLLHUP so an error is visible to a caller that only
//     armed one side.
//
// Stopping additionally requires zero pending fd events and an empty
// timer set, layered on top of the base scheduler's "queue empty, no
// active workers" condition via the Hooks.Stopping override.
package ioreactor
