// Package queue provides the FIFO hand-off between the capture loop and the
// processing loop. A Queue is unbounded unless given a capacity, in which
// case its overflow policy decides between blocking the producer and
// evicting the oldest item.
package queue
