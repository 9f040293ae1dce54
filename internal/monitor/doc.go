// Package monitor tracks in-flight downloads and turns transfer failures into
// retry decisions.
//
// A Monitor owns per-job DownloadMetrics, a bounded history of finished jobs,
// and a throttled connectivity probe. HandleError classifies the failure with
// the retry package and returns the policy's Decision; the caller performs
// any wait. Lifecycle events fan out to registered Listeners synchronously,
// after the monitor lock is released, with failures and panics contained.
package monitor
