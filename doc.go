// Package portfolio is the domain model of yspy, a terminal stock-portfolio tracker.
//
// A portfolio is a directory of JSON files that users can edit by hand:
//   - stockPortfolio.json maps stock names to market tickers.
//   - One lot file per ticker lists the open purchases as
//     [volume, price, "MM/DD/YYYY", uid] arrays, in the stock's currency.
//   - <name>_profit.json lists the realized profit of every lot sold.
//   - portfolio_capital.json is the capital ledger: deposits, withdrawals, buys
//     and sells in SEK, with the cash balance.
//   - highlighted_stocks.json lists the stocks marked in the UI.
//
// Sells consume the oldest lots first (FIFO), so the sum of the lot volumes is
// always the number of shares reported. Live prices come from the realtime
// package and historical closes from the history package; Portfolio ties them
// together for valuation, the prices table and the return calculations.
package portfolio
