package gateway

// notFoundHTML is served, verbatim, for requests whose Host header is
// empty or has no registered origin. Grounded on the static 404 page the
// upstream reverse proxy returns for the same condition.
const notFoundHTML = `<!doctype html>
<html>
<head>
    <title>404 Not Found</title>
</head>
<body>
    <center><h1>404 Not Found</h1></center>
    <hr/>
    <center>blockcache</center>
</body>
</html>
`
